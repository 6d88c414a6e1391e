// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"

	"github.com/u-root/meflash/pkg/fwerr"
)

// RegionNames are the flash descriptor names of FREG0 to FREG4.
var RegionNames = [FREG_COUNT]string{
	REGION_DESCRIPTOR: "Descriptor",
	REGION_BIOS:       "BIOS",
	REGION_ME:         "ME",
	REGION_GBE:        "GbE",
	REGION_PDR:        "Platform Data",
}

// Region is an inclusive range of flash addresses.
type Region struct {
	Base  uint32
	Limit uint32
}

func (r Region) Size() int64 {
	if r.Limit < r.Base {
		return 0
	}
	return int64(r.Limit) - int64(r.Base) + 1
}

func (r Region) String() string {
	return fmt.Sprintf("%#08x-%#08x", r.Base, r.Limit)
}

// DecodeFREG turns a FREGn value into a region. Unused regions are encoded
// with the limit below the base and come back with ok false.
func DecodeFREG(v uint32) (r Region, ok bool) {
	base := (v & FREG_BASE_MASK) << FREG_PAGE_SHIFT
	limit := (v>>FREG_LIMIT_SHIFT&FREG_BASE_MASK)<<FREG_PAGE_SHIFT | (1<<FREG_PAGE_SHIFT - 1)
	r = Region{Base: base, Limit: limit}
	return r, limit > base
}

// ReadRegion returns FREGn decoded.
func (c *Controller) ReadRegion(n int) (Region, bool, error) {
	const op = fwerr.Op("spi.ReadRegion")
	if n < 0 || n >= FREG_COUNT {
		return Region{}, false, fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("region %d", n))
	}
	if err := c.ready(op); err != nil {
		return Region{}, false, err
	}
	r, ok := DecodeFREG(c.read32(FREG0 + uintptr(n)*4))
	return r, ok, nil
}

// VerifyRegion checks that the ME region descriptor matches want. The
// limit is accepted either as the last byte or as the start of the last
// page.
func (c *Controller) VerifyRegion(want Region) error {
	const op = fwerr.Op("spi.VerifyRegion")
	if err := c.ready(op); err != nil {
		return err
	}
	v := c.read32(FREG0 + REGION_ME*4)
	base := (v & FREG_BASE_MASK) << FREG_PAGE_SHIFT
	limit := (v >> FREG_LIMIT_SHIFT & FREG_BASE_MASK) << FREG_PAGE_SHIFT
	if base != want.Base || (limit != want.Limit && limit != want.Limit&^(1<<FREG_PAGE_SHIFT-1)) {
		return fwerr.E(op, fwerr.NotFound, fmt.Sprintf("FREG2 %#08x is %#08x-%#08x, expected %v", v, base, limit|(1<<FREG_PAGE_SHIFT-1), want))
	}
	log.Debugf("ME region %v confirmed by FREG2 %#08x", want, v)
	return nil
}
