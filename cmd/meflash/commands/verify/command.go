// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package verify

import (
	"fmt"

	"github.com/u-root/meflash/cmd/meflash/commands"
	"github.com/u-root/meflash/pkg/firmware/mefw"
	"github.com/u-root/meflash/pkg/fwerr"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	Image string `short:"f" long:"file" description:"path to the ME image" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "compare the ME region against an image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Reads the ME region and compares it byte by byte with the image, without writing. " +
		"An image larger than the region is compared up to the region size."
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
	t.Pass(p.Engine(), "verify")
	res, err := p.Verify(img)
	t.Wait()
	if err != nil {
		return err
	}
	fmt.Println(res)
	if !res.Match() {
		return fwerr.E(fwerr.Op("verify"), fwerr.DeviceError, "ME region differs from the image")
	}
	return nil
}
