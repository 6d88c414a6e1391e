// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package info

import (
	"fmt"
	"os"

	"github.com/u-root/meflash/cmd/meflash/commands"
)

var _ commands.Command = (*Command)(nil)

type Command struct{}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "show the SPI controller state and flash regions"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Prints the controller base, FRAP, FLOCKDN, the clock divider and the flash regions described by FREG0 to FREG4. " +
		"Finding the clock divider writes a test pattern into candidate registers and restores them."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	p, err := commands.Global.Open()
	if err != nil {
		return err
	}
	defer p.Close()
	info, err := p.Info()
	if err != nil {
		return err
	}
	info.Render(os.Stdout)
	return nil
}
