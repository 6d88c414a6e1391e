// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spi drives the hardware sequencing interface of the Intel PCH SPI
// flash controller.
//
// A Controller owns the register block for the lifetime of a session. The
// hardware runs a single cycle at a time and offers no completion
// interrupt, so every operation polls with fixed bounds and delays. Do not
// share a Controller between goroutines.
package spi

import (
	"fmt"
	"time"

	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/mmio"
	"github.com/u-root/meflash/pkg/logger"
)

var log = logger.LogContainer.GetSimpleLogger()

type Controller struct {
	mem  mmio.Mem
	base uintptr

	stall                func(time.Duration)
	idleIterations       int
	completionIterations int

	// Original divider, nil when nothing has been changed.
	saved *ClockSetting
}

type Option func(*Controller)

// WithStall replaces the delay between polls, tests pass a no-op.
func WithStall(f func(time.Duration)) Option {
	return func(c *Controller) {
		c.stall = f
	}
}

// WithPollIterations overrides IdlePollIterations and CompletionPollIterations.
func WithPollIterations(idle, completion int) Option {
	return func(c *Controller) {
		c.idleIterations = idle
		c.completionIterations = completion
	}
}

// New takes ownership of mem, whose register block starts at base.
func New(mem mmio.Mem, base uintptr, opts ...Option) *Controller {
	c := &Controller{
		mem:                  mem,
		base:                 base,
		stall:                time.Sleep,
		idleIterations:       IdlePollIterations,
		completionIterations: CompletionPollIterations,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Base() uintptr {
	return c.base
}

// Close releases the register mapping. A saved clock divider is not
// restored, call RestoreClockDivider first.
func (c *Controller) Close() error {
	if c.saved != nil {
		log.Warnf("SPI controller closed with clock divider still changed, original %d at %s", c.saved.Divider, c.saved.Location.Name)
	}
	if c.mem == nil {
		return nil
	}
	err := c.mem.Close()
	c.mem = nil
	return err
}

func (c *Controller) ready(op fwerr.Op) error {
	if c == nil || c.mem == nil || c.base == 0 {
		return fwerr.E(op, fwerr.NotReady, "SPI controller is not mapped")
	}
	return nil
}

func (c *Controller) read32(off uintptr) uint32 {
	return c.mem.MustRead32(c.base + off)
}

func (c *Controller) write32(off uintptr, v uint32) {
	// Never write back status bits that clear on write.
	if off == HSFSTS_CTL {
		v &^= HSFSTS_W1C
	}
	c.mem.MustWrite32(c.base+off, v)
}

// Status returns HSFSTS_CTL.
func (c *Controller) Status() (uint32, error) {
	if err := c.ready("spi.Status"); err != nil {
		return 0, err
	}
	return c.read32(HSFSTS_CTL), nil
}

// WaitIdle polls SCIP up to iterations times, IdlePollDelay apart.
func (c *Controller) WaitIdle(iterations int) error {
	const op = fwerr.Op("spi.WaitIdle")
	if err := c.ready(op); err != nil {
		return err
	}
	if iterations < 1 {
		iterations = 1
	}
	var s uint32
	for i := 0; i < iterations; i++ {
		s = c.read32(HSFSTS_CTL)
		if s&HSFSTS_SCIP == 0 {
			return nil
		}
		c.stall(IdlePollDelay)
	}
	return fwerr.E(op, fwerr.Timeout, fmt.Sprintf("SCIP still set after %d polls, HSFSTS_CTL %#08x", iterations, s))
}

func (c *Controller) waitIdle() error {
	return c.WaitIdle(c.idleIterations)
}

// ReadRegister reads the register at off from the SPI BAR.
func (c *Controller) ReadRegister(off uintptr) (uint32, error) {
	const op = fwerr.Op("spi.ReadRegister")
	if err := c.ready(op); err != nil {
		return 0, err
	}
	if off%4 != 0 || off >= BAR_SIZE {
		return 0, fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("offset %#x is unaligned or outside the BAR", off))
	}
	return c.read32(off), nil
}

// WriteRegister writes the register at off once the controller is idle.
// Writes to HSFSTS_CTL never carry the write-one-to-clear status bits.
func (c *Controller) WriteRegister(off uintptr, v uint32) error {
	const op = fwerr.Op("spi.WriteRegister")
	if err := c.ready(op); err != nil {
		return err
	}
	if off%4 != 0 || off >= BAR_SIZE {
		return fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("offset %#x is unaligned or outside the BAR", off))
	}
	if err := c.waitIdle(); err != nil {
		return fwerr.E(op, err)
	}
	log.Debugf("%s <- %#08x", RegisterName(off), v)
	c.write32(off, v)
	return nil
}
