// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inspect

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/u-root/meflash/cmd/meflash/commands"
	"github.com/u-root/meflash/pkg/firmware/meimage"
	"github.com/u-root/meflash/pkg/fwerr"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	Image   string `short:"f" long:"file" description:"path to the ME image" required:"true"`
	Verbose bool   `short:"v" long:"verbose" description:"also print the raw partition table fields"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "list the partitions of an ME image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Parses the flash partition table of an ME image and checks that it fits the ME region. Does not touch the hardware."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	b, err := afero.ReadFile(commands.Fs, cmd.Image)
	if err != nil {
		return fwerr.E(fwerr.Op("inspect"), fwerr.NotFound, err)
	}
	img, err := meimage.Inspect(b)
	if err != nil {
		return err
	}
	img.Render(os.Stdout)
	if cmd.Verbose {
		fmt.Print(img.Info)
	}
	region := commands.Global.Config().MERegion
	return img.Check(int64(region.Limit) - int64(region.Base) + 1)
}
