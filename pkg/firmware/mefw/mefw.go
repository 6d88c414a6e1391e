// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mefw restores, dumps and verifies the ME region of the SPI flash
// through the PCH hardware sequencing interface.
package mefw

import (
	"bytes"
	"errors"
	"io"
	iofs "io/fs"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/u-root/meflash/config"
	"github.com/u-root/meflash/pkg/firmware/meimage"
	"github.com/u-root/meflash/pkg/firmware/transfer"
	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/intel/spi"
	"github.com/u-root/meflash/pkg/hardware/mmio"
	"github.com/u-root/meflash/pkg/logger"
)

var log = logger.LogContainer.GetSimpleLogger()

type Options struct {
	Config *config.Config
	Fs     afero.Fs
	// Base skips PCI discovery when set.
	Base uintptr
	// Mem is used instead of mapping the controller window.
	Mem mmio.Mem
	SPI []spi.Option
	// Progress is handed to every transfer pass.
	Progress func(done, total int64)
}

// Platform is an opened SPI controller whose ME region has been confirmed.
type Platform struct {
	cfg    *config.Config
	ctl    *spi.Controller
	region spi.Region
	engine *transfer.Engine
}

// Open finds and maps the SPI controller and checks that FREG2 describes
// the configured ME region.
func Open(opts Options) (*Platform, error) {
	const op = fwerr.Op("mefw.Open")
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	base := opts.Base
	if base == 0 {
		var err error
		if base, err = Discover(fs, cfg.Platform); err != nil {
			return nil, fwerr.E(op, err)
		}
	}
	mem := opts.Mem
	if mem == nil {
		w, err := mmio.OpenWindow(base, cfg.Platform.WindowSize)
		if err != nil {
			return nil, fwerr.E(op, err)
		}
		mem = w
	}
	ctl := spi.New(mem, base, opts.SPI...)
	region := spi.Region{Base: cfg.MERegion.Base, Limit: cfg.MERegion.Limit}
	if err := ctl.VerifyRegion(region); err != nil {
		ctl.Close()
		return nil, fwerr.E(op, err)
	}
	p := &Platform{
		cfg:    cfg,
		ctl:    ctl,
		region: region,
	}
	eopts := []transfer.Option{
		transfer.WithChunkSize(cfg.Transfer.ChunkSize),
		transfer.WithTransactionSize(cfg.Transfer.TransactionSize),
	}
	if opts.Progress != nil {
		eopts = append(eopts, transfer.WithProgress(cfg.Transfer.ProgressStride, opts.Progress))
	}
	p.engine = transfer.New(ctl, region, eopts...)
	log.Infof("%s SPI controller at %#08x, ME region %v", cfg.Platform.Name, base, region)
	return p, nil
}

func (p *Platform) Close() error {
	return p.ctl.Close()
}

func (p *Platform) Controller() *spi.Controller {
	return p.ctl
}

// Engine is the transfer engine used by Restore, Dump and Verify. Its N and
// Err follow the running pass.
func (p *Platform) Engine() *transfer.Engine {
	return p.engine
}

func (p *Platform) Region() spi.Region {
	return p.region
}

// withClock runs f with the SPI clock slowed to the configured divider and
// puts the original divider back afterwards, whatever f returns.
func (p *Platform) withClock(f func() error) (err error) {
	if err := p.ctl.SetClockDivider(spi.ClockDivider(p.cfg.Transfer.ClockDivider)); err != nil {
		log.Warnf("continuing at the current SPI clock: %v", err)
	}
	defer func() {
		if rerr := p.ctl.RestoreClockDivider(); rerr != nil {
			log.Errorf("SPI clock divider not restored: %v", rerr)
			err = multierror.Append(err, rerr)
		}
	}()
	return f()
}

func nonEmpty(op fwerr.Op, src io.Seeker) (int64, error) {
	size, err := transfer.Length(src)
	if err != nil {
		return 0, fwerr.E(op, fwerr.DeviceError, err)
	}
	if size == 0 {
		return 0, fwerr.E(op, fwerr.InvalidParameter, "empty image")
	}
	return size, nil
}

type RestoreOptions struct {
	// Force goes ahead when the write grant cannot be set or the image does
	// not fit the region.
	Force bool
	// SkipInspect writes images without an ME partition table.
	SkipInspect bool
	OnState     func(transfer.State)
}

func (p *Platform) inspect(src io.ReadSeeker, force bool) error {
	b, err := io.ReadAll(src)
	if err != nil {
		return fwerr.E(fwerr.DeviceError, err, "reading image")
	}
	img, err := meimage.Inspect(b)
	if err != nil {
		return err
	}
	log.Infof("image has %d partitions: %v", len(img.Partitions), partitionNames(img))
	if err := img.Check(p.region.Size()); err != nil {
		if !force {
			return err
		}
		log.Warnf("forced: %v", err)
	}
	return nil
}

func partitionNames(img *meimage.Image) []string {
	names := make([]string, 0, len(img.Partitions))
	for _, p := range img.Partitions {
		names = append(names, p.Name)
	}
	return names
}

// Restore writes src into the ME region and verifies it, rewriting up to
// the configured number of times until it reads back intact.
func (p *Platform) Restore(src io.ReadSeeker, opts RestoreOptions) (transfer.Report, error) {
	const op = fwerr.Op("mefw.Restore")
	rep := transfer.Report{State: transfer.StateFailed, Result: transfer.VerificationResult{FirstMismatch: -1}}
	if _, err := nonEmpty(op, src); err != nil {
		return rep, err
	}
	if !opts.SkipInspect {
		if err := p.inspect(src, opts.Force); err != nil {
			return rep, fwerr.E(op, err)
		}
	}
	if err := p.ctl.DisableWriteProtection(); err != nil {
		if !opts.Force || !errors.Is(err, fwerr.AccessDenied) {
			return rep, fwerr.E(op, err)
		}
		log.Warnf("forced: writing with the ME region protected, %v", err)
	}

	s := transfer.NewSession(p.engine, p.cfg.Transfer.MaxRestoreAttempts)
	if opts.OnState != nil {
		s.OnState(opts.OnState)
	}
	err := p.withClock(func() error {
		var err error
		rep, err = s.Run(src)
		return err
	})
	if err != nil {
		return rep, fwerr.E(op, err)
	}
	log.Infof("ME region restored after %d restore passes, %v", rep.Restores, rep.Result)
	return rep, nil
}

// Dump copies the ME region into dst.
func (p *Platform) Dump(dst io.Writer) (int64, error) {
	const op = fwerr.Op("mefw.Dump")
	read, _, err := p.ctl.Access(spi.REGION_ME)
	if err != nil {
		return 0, fwerr.E(op, err)
	}
	if !read {
		log.Warnf("FRAP does not grant host read access to the ME region, reads may fail")
	}
	var n int64
	err = p.withClock(func() error {
		var err error
		n, err = p.engine.Read(dst)
		return err
	})
	if err != nil {
		return n, fwerr.E(op, err)
	}
	return n, nil
}

// Verify compares the ME region against src without writing.
func (p *Platform) Verify(src io.ReadSeeker) (transfer.VerificationResult, error) {
	const op = fwerr.Op("mefw.Verify")
	res := transfer.VerificationResult{FirstMismatch: -1}
	if _, err := nonEmpty(op, src); err != nil {
		return res, err
	}
	err := p.withClock(func() error {
		var err error
		res, err = p.engine.Verify(src)
		return err
	})
	if err != nil {
		return res, fwerr.E(op, err)
	}
	if !res.Match() {
		log.Warnf("ME region differs from the image: %v", res)
	}
	return res, nil
}

// ReadImage loads an image file for Restore and Verify.
func ReadImage(fs afero.Fs, path string) (*bytes.Reader, error) {
	const op = fwerr.Op("mefw.ReadImage")
	b, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return nil, fwerr.E(op, fwerr.NotFound, err)
	case errors.Is(err, iofs.ErrPermission):
		return nil, fwerr.E(op, fwerr.AccessDenied, err)
	case err != nil:
		return nil, fwerr.E(op, fwerr.DeviceError, err)
	}
	return bytes.NewReader(b), nil
}
