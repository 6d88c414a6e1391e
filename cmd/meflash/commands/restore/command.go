// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package restore

import (
	"fmt"

	"github.com/u-root/meflash/cmd/meflash/commands"
	"github.com/u-root/meflash/pkg/firmware/mefw"
	"github.com/u-root/meflash/pkg/firmware/transfer"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	Image       string `short:"f" long:"file" description:"path to the ME image" required:"true"`
	Force       bool   `long:"force" description:"continue when the ME region stays write protected or the image does not fit"`
	SkipInspect bool   `long:"skip-inspect" description:"write images without an ME partition table"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "write an image into the ME region and verify it"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Clears the ME region write protection, slows the SPI clock, writes the image and reads it back. " +
		"A region that does not read back intact is rewritten up to three times. The SPI clock is restored in every case."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	img, err := mefw.ReadImage(commands.Fs, cmd.Image)
	if err != nil {
		return err
	}
	p, err := commands.Global.Open()
	if err != nil {
		return err
	}
	defer p.Close()

	size := img.Size()
	if rs := p.Region().Size(); size > rs {
		size = rs
	}
	t := commands.NewTracker(size)
	rep, err := p.Restore(img, mefw.RestoreOptions{
		Force:       cmd.Force,
		SkipInspect: cmd.SkipInspect,
		OnState: func(s transfer.State) {
			switch s {
			case transfer.StateWrite, transfer.StateVerify, transfer.StateRestore:
				t.Pass(p.Engine(), s.String())
			}
		},
	})
	t.Wait()
	if err != nil {
		return err
	}
	fmt.Printf("ME region restored from %s, %v, %d restore passes\n", cmd.Image, rep.Result, rep.Restores)
	return nil
}
