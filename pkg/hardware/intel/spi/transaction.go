// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"

	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/metric"
)

const (
	// FADDR.FLA is 27 bits wide.
	FADDR_MASK uint32 = 0x07ffffff
)

// ReadTransaction reads len(buf) bytes, 1 to MAX_TRANSACTION, at flash
// address addr in a single hardware sequencing cycle.
func (c *Controller) ReadTransaction(addr uint32, buf []byte) error {
	const op = fwerr.Op("spi.ReadTransaction")
	if err := checkSize(op, len(buf)); err != nil {
		return err
	}
	if err := c.ready(op); err != nil {
		return err
	}
	if err := c.cycle(op, FCYCLE_READ, addr, len(buf)); err != nil {
		return err
	}
	c.drain(buf)
	return nil
}

// WriteTransaction programs data, 1 to MAX_TRANSACTION bytes, at flash
// address addr in a single hardware sequencing cycle. The target must be
// erased or accept the write, the controller does not erase.
func (c *Controller) WriteTransaction(addr uint32, data []byte) error {
	const op = fwerr.Op("spi.WriteTransaction")
	if err := checkSize(op, len(data)); err != nil {
		return err
	}
	if err := c.ready(op); err != nil {
		return err
	}
	return c.cycle(op, FCYCLE_WRITE, addr, len(data), data...)
}

func checkSize(op fwerr.Op, n int) error {
	if n == 0 || n > MAX_TRANSACTION {
		return fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("transaction size %d, must be 1 to %d", n, MAX_TRANSACTION))
	}
	return nil
}

func cycleName(cycle uint32) string {
	if cycle == FCYCLE_WRITE {
		return "write"
	}
	return "read"
}

func (c *Controller) ack(bits uint32) {
	c.mem.MustWrite32(c.base+HSFSTS_CTL, bits&HSFSTS_W1C)
}

func (c *Controller) cycle(op fwerr.Op, cycle uint32, addr uint32, n int, data ...byte) error {
	name := cycleName(cycle)
	if err := c.waitIdle(); err != nil {
		metric.Transactions.WithLabelValues(name, "timeout").Inc()
		return fwerr.E(op, err, fmt.Sprintf("flash address %#08x", addr))
	}

	// A previous cycle may have left FDONE or an error behind.
	if s := c.read32(HSFSTS_CTL); s&HSFSTS_W1C != 0 {
		c.ack(s)
	}

	c.write32(FADDR, addr&FADDR_MASK)
	if cycle == FCYCLE_WRITE {
		c.fill(data)
	}
	ctl := HSFCTL_FGO |
		cycle<<HSFCTL_FCYCLE_SHIFT&HSFCTL_FCYCLE_MASK |
		uint32(n-1)<<HSFCTL_FDBC_SHIFT&HSFCTL_FDBC_MASK
	c.write32(HSFSTS_CTL, ctl)

	var s uint32
	for i := 0; i < c.completionIterations; i++ {
		s = c.read32(HSFSTS_CTL)
		switch {
		case s&HSFSTS_AEL != 0:
			c.ack(s)
			metric.Transactions.WithLabelValues(name, "denied").Inc()
			return fwerr.E(op, fwerr.AccessDenied, fmt.Sprintf("%s of %d bytes at %#08x blocked by region protection, HSFSTS_CTL %#08x", name, n, addr, s))
		case s&HSFSTS_FCERR != 0:
			c.ack(s)
			metric.Transactions.WithLabelValues(name, "error").Inc()
			return fwerr.E(op, fwerr.DeviceError, fmt.Sprintf("%s of %d bytes at %#08x failed, HSFSTS_CTL %#08x", name, n, addr, s))
		case s&HSFSTS_FDONE != 0:
			c.ack(HSFSTS_FDONE)
			metric.Transactions.WithLabelValues(name, "ok").Inc()
			return nil
		}
		c.stall(CompletionPollDelay)
	}
	metric.Transactions.WithLabelValues(name, "timeout").Inc()
	return fwerr.E(op, fwerr.Timeout, fmt.Sprintf("%s of %d bytes at %#08x did not complete after %d polls, HSFSTS_CTL %#08x", name, n, addr, c.completionIterations, s))
}

// fill packs data little endian into FDATA0 onwards.
func (c *Controller) fill(data []byte) {
	for i := 0; i < len(data); i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < len(data); j++ {
			w |= uint32(data[i+j]) << (8 * j)
		}
		c.write32(FDATA0+uintptr(i), w)
	}
}

// drain unpacks FDATA0 onwards into buf.
func (c *Controller) drain(buf []byte) {
	for i := 0; i < len(buf); i += 4 {
		w := c.read32(FDATA0 + uintptr(i))
		for j := 0; j < 4 && i+j < len(buf); j++ {
			buf[i+j] = byte(w >> (8 * j))
		}
	}
}
