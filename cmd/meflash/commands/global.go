// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/u-root/meflash/config"
	"github.com/u-root/meflash/pkg/firmware/mefw"
	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/intel/spi"
	"github.com/u-root/meflash/pkg/hardware/mmio"
	"github.com/u-root/meflash/pkg/logger"
)

var log = logger.LogContainer.GetSimpleLogger()

// Options are accepted before the command name.
type Options struct {
	LogFile     string `long:"log-file" description:"also write JSON log entries to this file"`
	Debug       bool   `long:"debug" description:"log register level detail"`
	MetricsFile string `long:"metrics-file" description:"write transfer metrics in the node_exporter textfile format"`
	Base        string `long:"base" description:"SPI BAR, skips PCI discovery"`
}

// Global holds the parsed global options.
var Global Options

// Fs is where images and dumps are read and written.
var Fs afero.Fs = afero.NewOsFs()

// Config returns the configuration with the global options applied.
func (o *Options) Config() *config.Config {
	cfg := *config.DefaultConfig
	cfg.LogFile = o.LogFile
	return &cfg
}

func (o *Options) base() (uintptr, error) {
	if o.Base == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(o.Base, 0, 64)
	if err != nil {
		return 0, ErrArgs{Err: fmt.Errorf("--base: %w", err)}
	}
	return uintptr(v), nil
}

// Open maps the controller and confirms the ME region.
func (o *Options) Open() (*mefw.Platform, error) {
	base, err := o.base()
	if err != nil {
		return nil, err
	}
	return mefw.Open(mefw.Options{
		Config:   o.Config(),
		Fs:       Fs,
		Base:     base,
		Progress: logProgress,
	})
}

func logProgress(done, total int64) {
	log.Debugf("%s of %s", humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
}

// Controller returns a controller on single physical accesses, without the
// ME region check, for poking at registers.
func (o *Options) Controller() (*spi.Controller, error) {
	base, err := o.base()
	if err != nil {
		return nil, err
	}
	if base == 0 {
		if base, err = mefw.Discover(Fs, o.Config().Platform); err != nil {
			return nil, fwerr.E(fwerr.Op("commands.Controller"), err)
		}
	}
	return spi.New(mmio.PhysMem(), base), nil
}
