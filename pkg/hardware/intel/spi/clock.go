// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"errors"
	"fmt"

	"github.com/u-root/meflash/pkg/fwerr"
)

// ClockDivider is the value of the 3 bit divider field.
type ClockDivider uint32

const (
	DIV_1 ClockDivider = iota
	DIV_2
	DIV_4
	DIV_8
	DIV_16

	// Slow enough for every part seen so far.
	DIV_RELIABLE = DIV_8

	CLOCK_DIV_MASK uint32 = 0x7
)

func (d ClockDivider) String() string {
	if d > DIV_16 {
		return fmt.Sprintf("divider(%d)", uint32(d))
	}
	return fmt.Sprintf("/%d", 1<<d)
}

// ClockLocation is a register and the bit position of a divider field in it.
type ClockLocation struct {
	Name   string
	Offset uintptr
	Shift  uint
}

func (l ClockLocation) field(reg uint32) ClockDivider {
	return ClockDivider(reg >> l.Shift & CLOCK_DIV_MASK)
}

func (l ClockLocation) with(reg uint32, d ClockDivider) uint32 {
	return reg&^(CLOCK_DIV_MASK<<l.Shift) | (uint32(d)&CLOCK_DIV_MASK)<<l.Shift
}

func (l ClockLocation) String() string {
	return fmt.Sprintf("%s[%d:%d]", l.Name, l.Shift+2, l.Shift)
}

// ClockCandidates are tried in order by ProbeClockControl. The first is
// where Meteor Lake keeps it, the others are where older PCHs did.
var ClockCandidates = []ClockLocation{
	{Name: "CLOCK_CTL", Offset: CLOCK_CTL, Shift: 8},
	{Name: "HSFSTS_CTL", Offset: HSFSTS_CTL, Shift: 8},
	{Name: "SSFSTS_CTL.SCF", Offset: SSFSTS_CTL, Shift: 16},
}

// DefaultClockLocation is reported when no candidate responds.
var DefaultClockLocation = ClockCandidates[0]

// ClockSetting is the divider found before the first change of a session.
type ClockSetting struct {
	Location ClockLocation
	Divider  ClockDivider
}

// ProbeClockControl finds the register holding the SPI clock divider by
// writing a test pattern into each candidate and reading it back. Every
// candidate is written back to its original value whether or not the
// pattern stuck. When none respond it returns DefaultClockLocation with a
// NotFound error.
func (c *Controller) ProbeClockControl() (ClockLocation, error) {
	const op = fwerr.Op("spi.ProbeClockControl")
	if err := c.ready(op); err != nil {
		return DefaultClockLocation, err
	}
	for _, loc := range ClockCandidates {
		if err := c.waitIdle(); err != nil {
			return DefaultClockLocation, fwerr.E(op, err)
		}
		if c.probe(loc) {
			log.Debugf("SPI clock divider found in %v", loc)
			return loc, nil
		}
	}
	return DefaultClockLocation, fwerr.E(op, fwerr.NotFound, fmt.Sprintf("no candidate register holds the clock divider, assuming %v", DefaultClockLocation))
}

func (c *Controller) probe(loc ClockLocation) bool {
	orig := c.read32(loc.Offset)
	pattern := DIV_RELIABLE
	// The pattern must differ from what is there or a read-only field
	// would look writable.
	if loc.field(orig) == pattern {
		pattern = DIV_16
	}
	c.write32(loc.Offset, loc.with(orig, pattern))
	c.stall(ClockSettleDelay)
	got := c.read32(loc.Offset)
	c.write32(loc.Offset, orig)
	return loc.field(got) == pattern
}

// SetClockDivider changes the SPI clock divider. The original value is kept
// until RestoreClockDivider, later calls do not overwrite it.
func (c *Controller) SetClockDivider(d ClockDivider) error {
	const op = fwerr.Op("spi.SetClockDivider")
	if uint32(d) > CLOCK_DIV_MASK {
		return fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("divider %d does not fit the field", uint32(d)))
	}
	if err := c.ready(op); err != nil {
		return err
	}
	loc, err := c.ProbeClockControl()
	if err != nil {
		if !errors.Is(err, fwerr.NotFound) {
			return fwerr.E(op, err)
		}
		log.Warnf("%v", err)
	}
	if c.saved != nil {
		loc = c.saved.Location
	}
	if err := c.waitIdle(); err != nil {
		return fwerr.E(op, err)
	}
	reg := c.read32(loc.Offset)
	if c.saved == nil {
		c.saved = &ClockSetting{Location: loc, Divider: loc.field(reg)}
		log.Debugf("saved SPI clock divider %v from %v", c.saved.Divider, loc)
	}
	c.write32(loc.Offset, loc.with(reg, d))
	c.stall(ClockSettleDelay)
	if got := loc.field(c.read32(loc.Offset)); got != d {
		return fwerr.E(op, fwerr.DeviceError, fmt.Sprintf("%v: wrote divider %v, read back %v", loc, d, got))
	}
	log.Infof("SPI clock divider set to %v in %v", d, loc)
	return nil
}

// RestoreClockDivider writes back the divider saved by SetClockDivider and
// forgets it. Without a saved value it does nothing.
func (c *Controller) RestoreClockDivider() error {
	const op = fwerr.Op("spi.RestoreClockDivider")
	if c.saved == nil {
		return nil
	}
	if err := c.ready(op); err != nil {
		return err
	}
	if err := c.waitIdle(); err != nil {
		return fwerr.E(op, err)
	}
	s := *c.saved
	c.saved = nil
	reg := c.read32(s.Location.Offset)
	c.write32(s.Location.Offset, s.Location.with(reg, s.Divider))
	c.stall(ClockSettleDelay)
	if got := s.Location.field(c.read32(s.Location.Offset)); got != s.Divider {
		return fwerr.E(op, fwerr.DeviceError, fmt.Sprintf("%v: restored divider %v, read back %v", s.Location, s.Divider, got))
	}
	log.Infof("SPI clock divider restored to %v", s.Divider)
	return nil
}

// ClockDivider probes for the clock control register and returns the divider
// it currently holds.
func (c *Controller) ClockDivider() (ClockLocation, ClockDivider, error) {
	loc, err := c.ProbeClockControl()
	if err != nil && !errors.Is(err, fwerr.NotFound) {
		return loc, 0, err
	}
	return loc, loc.field(c.read32(loc.Offset)), err
}

// ClockSetting returns the saved original divider, if any.
func (c *Controller) ClockSetting() (ClockSetting, bool) {
	if c.saved == nil {
		return ClockSetting{}, false
	}
	return *c.saved, true
}
