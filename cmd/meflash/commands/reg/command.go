// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reg

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/u-root/meflash/cmd/meflash/commands"
	"github.com/u-root/meflash/pkg/hardware/intel/spi"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	Length int `short:"n" long:"length" default:"16" description:"bytes read by trigger, 1 to 16"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "access SPI controller registers"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return `Usage:
    reg dump            print every named register
    reg read OFF        read the register at OFF from the SPI BAR
    reg write OFF VAL   write VAL to the register at OFF once the controller is idle
    reg trigger ADDR    run one hardware sequencing read at flash address ADDR`
}

func parse(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, commands.ErrArgs{Err: err}
	}
	return v, nil
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) == 0 {
		return commands.ErrArgs{Err: fmt.Errorf("missing action, one of dump, read, write, trigger")}
	}
	want := map[string]int{"dump": 1, "read": 2, "write": 3, "trigger": 2}
	n, ok := want[args[0]]
	if !ok {
		return commands.ErrArgs{Err: fmt.Errorf("unknown action %q", args[0])}
	}
	if len(args) != n {
		return commands.ErrArgs{Err: fmt.Errorf("%s takes %d arguments", args[0], n-1)}
	}

	// Arguments are checked before the controller is touched.
	var off, val, addr uint64
	var err error
	switch args[0] {
	case "read":
		off, err = parse(args[1], 16)
	case "write":
		if off, err = parse(args[1], 16); err == nil {
			val, err = parse(args[2], 32)
		}
	case "trigger":
		if cmd.Length < 1 || cmd.Length > spi.MAX_TRANSACTION {
			return commands.ErrArgs{Err: fmt.Errorf("length %d is not between 1 and %d", cmd.Length, spi.MAX_TRANSACTION)}
		}
		addr, err = parse(args[1], 32)
	}
	if err != nil {
		return err
	}

	c, err := commands.Global.Controller()
	if err != nil {
		return err
	}
	defer c.Close()

	switch args[0] {
	case "dump":
		regs, err := c.Registers()
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Offset", "Name", "Value"})
		for _, r := range regs {
			t.AppendRow(table.Row{fmt.Sprintf("%#04x", r.Offset), r.Name, fmt.Sprintf("%#08x", r.Value)})
		}
		t.Render()
	case "read":
		v, err := c.ReadRegister(uintptr(off))
		if err != nil {
			return err
		}
		fmt.Printf("%s (%#04x) = %#08x\n", spi.RegisterName(uintptr(off)), off, v)
	case "write":
		if err := c.WriteRegister(uintptr(off), uint32(val)); err != nil {
			return err
		}
		got, err := c.ReadRegister(uintptr(off))
		if err != nil {
			return err
		}
		fmt.Printf("%s (%#04x) = %#08x, read back %#08x\n", spi.RegisterName(uintptr(off)), off, val, got)
	case "trigger":
		buf := make([]byte, cmd.Length)
		if err := c.ReadTransaction(uint32(addr), buf); err != nil {
			return err
		}
		fmt.Printf("%08x  %s\n", addr, hex.EncodeToString(buf))
	}
	return nil
}
