// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dump

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/u-root/meflash/cmd/meflash/commands"
	"github.com/u-root/meflash/pkg/fwerr"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	Output string `short:"o" long:"output" description:"file to write the ME region to" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "read the ME region into a file"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Reads the whole ME region through hardware sequencing, useful as a backup before a restore."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) (err error) {
	const op = fwerr.Op("dump")
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	p, err := commands.Global.Open()
	if err != nil {
		return err
	}
	defer p.Close()

	f, err := commands.Fs.Create(cmd.Output)
	if err != nil {
		return fwerr.E(op, fwerr.AccessDenied, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fwerr.E(op, fwerr.DeviceError, cerr)
		}
	}()

	t := commands.NewTracker(p.Region().Size())
	t.Pass(p.Engine(), "dump")
	n, err := p.Dump(f)
	t.Wait()
	if err != nil {
		return err
	}
	fmt.Printf("%s of the ME region written to %s\n", humanize.IBytes(uint64(n)), cmd.Output)
	return nil
}
