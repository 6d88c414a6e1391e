// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"
	"sort"
	"time"
)

// Offsets from the SPI BAR, PCH hardware sequencing layout.
const (
	BFPREG     uintptr = 0x00
	HSFSTS_CTL uintptr = 0x04
	FADDR      uintptr = 0x08
	DLOCK      uintptr = 0x0c
	FDATA0     uintptr = 0x10
	FRAP       uintptr = 0x50
	FREG0      uintptr = 0x54
	SSFSTS_CTL uintptr = 0xa0

	// Size of the register block behind the SPI BAR.
	BAR_SIZE uintptr = 0x1000

	// The clock divider on Meteor Lake was found at this offset. It shares
	// the address with FDATA0.
	CLOCK_CTL uintptr = 0x10

	FDATA_COUNT = 4
	FREG_COUNT  = 5

	// Bytes per hardware sequencing cycle, limited by the FDATA registers used.
	MAX_TRANSACTION = FDATA_COUNT * 4
)

// HSFSTS_CTL, status in the low half and control in the high half.
const (
	HSFSTS_FDONE   uint32 = 1 << 0
	HSFSTS_FCERR   uint32 = 1 << 1
	HSFSTS_AEL     uint32 = 1 << 2
	HSFSTS_SCIP    uint32 = 1 << 5
	HSFSTS_FLOCKDN uint32 = 1 << 15

	HSFCTL_FGO          uint32 = 1 << 16
	HSFCTL_FCYCLE_SHIFT        = 17
	HSFCTL_FCYCLE_MASK  uint32 = 0xf << HSFCTL_FCYCLE_SHIFT
	HSFCTL_FDBC_SHIFT          = 24
	HSFCTL_FDBC_MASK    uint32 = 0x3f << HSFCTL_FDBC_SHIFT

	FCYCLE_READ  uint32 = 0x0
	FCYCLE_WRITE uint32 = 0x2

	// Writing a one clears these.
	HSFSTS_W1C = HSFSTS_FDONE | HSFSTS_FCERR | HSFSTS_AEL
)

// FRAP holds a read grant (BRRA) in bits 7:0 and a write grant (BRWA) in
// bits 15:8, one bit per flash region.
const (
	FRAP_BRRA_SHIFT = 0
	FRAP_BRWA_SHIFT = 8

	REGION_DESCRIPTOR = 0
	REGION_BIOS       = 1
	REGION_ME         = 2
	REGION_GBE        = 3
	REGION_PDR        = 4
)

// FREGn base and limit, both in 4 KiB pages.
const (
	FREG_BASE_MASK   uint32 = 0x7fff
	FREG_LIMIT_SHIFT        = 16
	FREG_PAGE_SHIFT         = 12
)

// Polling bounds. These were tuned on hardware, change with care.
const (
	IdlePollIterations       = 1000
	IdlePollDelay            = 100 * time.Microsecond
	CompletionPollIterations = 10000
	CompletionPollDelay      = 100 * time.Microsecond
	ClockSettleDelay         = time.Millisecond
	ProtectionSettleDelay    = 100 * time.Millisecond
)

var spiRegs = map[uintptr]string{
	BFPREG:     "BFPREG",
	HSFSTS_CTL: "HSFSTS_CTL",
	FADDR:      "FADDR",
	DLOCK:      "DLOCK",
	FDATA0:     "FDATA0",
	0x14:       "FDATA1",
	0x18:       "FDATA2",
	0x1c:       "FDATA3",
	FRAP:       "FRAP",
	FREG0:      "FREG0",
	0x58:       "FREG1",
	0x5c:       "FREG2",
	0x60:       "FREG3",
	0x64:       "FREG4",
	SSFSTS_CTL: "SSFSTS_CTL",
}

// RegisterName returns the datasheet name of the register at off.
func RegisterName(off uintptr) string {
	if n, ok := spiRegs[off]; ok {
		return n
	}
	return fmt.Sprintf("SPI+%#03x", off)
}

// RegisterValue is one entry of a register dump.
type RegisterValue struct {
	Offset uintptr
	Name   string
	Value  uint32
}

// Registers reads every named register. None of them have read side effects.
func (c *Controller) Registers() ([]RegisterValue, error) {
	if err := c.ready("spi.Registers"); err != nil {
		return nil, err
	}
	offs := make([]uintptr, 0, len(spiRegs))
	for off := range spiRegs {
		offs = append(offs, off)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	regs := make([]RegisterValue, 0, len(offs))
	for _, off := range offs {
		regs = append(regs, RegisterValue{off, spiRegs[off], c.read32(off)})
	}
	return regs, nil
}
