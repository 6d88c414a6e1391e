// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// meflash restores the Intel ME region of the SPI flash on Meteor Lake
// systems through the PCH hardware sequencing interface.
//
// Synopsis:
//
//	meflash [--log-file FILE] [--debug] [--metrics-file FILE] [--base ADDR] COMMAND
//	meflash info
//	meflash dump -o FILE
//	meflash restore -f FILE [--force] [--skip-inspect]
//	meflash verify -f FILE
//	meflash inspect -f FILE
//	meflash reg dump|read OFF|write OFF VAL|trigger ADDR
//
// Description:
//
//	info:    Print the controller state and flash regions
//	dump:    Read the ME region into a file
//	restore: Write an image into the ME region, verify and rewrite as needed
//	verify:  Compare the ME region against an image
//	inspect: List the partitions of an ME image
//	reg:     Access SPI controller registers
//
// The exit status is 0 on success and otherwise tells the kind of failure:
// 1 other, 2 invalid parameter, 3 not ready, 4 not found, 5 access denied,
// 6 device error, 7 timeout, 8 out of resources.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/u-root/meflash/cmd/meflash/commands"
	"github.com/u-root/meflash/cmd/meflash/commands/dump"
	"github.com/u-root/meflash/cmd/meflash/commands/info"
	"github.com/u-root/meflash/cmd/meflash/commands/inspect"
	"github.com/u-root/meflash/cmd/meflash/commands/reg"
	"github.com/u-root/meflash/cmd/meflash/commands/restore"
	"github.com/u-root/meflash/cmd/meflash/commands/verify"
	"github.com/u-root/meflash/config"
	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/logger"
	"github.com/u-root/meflash/pkg/metric"
)

var (
	log = logger.LogContainer.GetSimpleLogger()

	knownCommands = map[string]commands.Command{
		"info":    &info.Command{},
		"dump":    &dump.Command{},
		"restore": &restore.Command{},
		"verify":  &verify.Command{},
		"inspect": &inspect.Command{},
		"reg":     &reg.Command{},
	}
)

// run configures logging from the global options, then runs cmd and
// writes out the metrics it produced.
func run(cmd flags.Commander, args []string) error {
	o := &commands.Global
	if err := logger.LogContainer.Configure(logger.Options{LogFile: o.LogFile, Debug: o.Debug}); err != nil {
		return fwerr.E(fwerr.Op("main"), fwerr.AccessDenied, err)
	}
	v := config.DefaultConfig.Version
	log.Debugf("meflash %s (%s)", v.Version, v.GitHash)

	err := cmd.Execute(args)
	if o.MetricsFile != "" {
		if merr := metric.WriteTextfile(o.MetricsFile); merr != nil {
			log.Errorf("writing metrics to %s: %v", o.MetricsFile, merr)
		}
	}
	return err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ferr *flags.Error
	if errors.As(err, &ferr) {
		if ferr.Type == flags.ErrHelp {
			return 0
		}
		return fwerr.InvalidParameter.ExitCode()
	}
	if errors.Is(err, fwerr.InvalidParameter) {
		return fwerr.InvalidParameter.ExitCode()
	}
	return fwerr.KindOf(err).ExitCode()
}

func main() {
	flagsParser := flags.NewParser(&commands.Global, flags.HelpFlag|flags.PassDoubleDash)
	flagsParser.CommandHandler = run
	for commandName, command := range knownCommands {
		_, err := flagsParser.AddCommand(commandName, command.ShortDescription(), command.LongDescription(), command)
		if err != nil {
			panic(err)
		}
	}

	_, err := flagsParser.Parse()
	logger.LogContainer.Sync()
	code := exitCode(err)
	if err != nil {
		if code == 0 {
			fmt.Fprintln(os.Stdout, err)
		} else {
			fmt.Fprintf(os.Stderr, "meflash: %v\n", err)
		}
	}
	os.Exit(code)
}
