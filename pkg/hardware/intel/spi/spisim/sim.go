// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spisim models the hardware sequencing register block of the PCH
// SPI controller over an in-memory flash part. Cycles complete on the write
// of FGO, so drivers see FDONE on their first poll.
package spisim

import (
	"fmt"
	"sync"

	"github.com/u-root/meflash/pkg/hardware/intel/spi"
)

// Cycle is one hardware sequencing cycle as issued by the driver.
type Cycle struct {
	Write bool
	Addr  uint32
	Len   int
}

type Sim struct {
	mu   sync.Mutex
	base uintptr
	regs map[uintptr]uint32
	// Bits of a register that ignore writes.
	readOnly map[uintptr]uint32

	Flash []byte
	// Cycles lists every cycle started, in order.
	Cycles []Cycle
	// Writes counts register writes of any kind.
	Writes int

	// Busy holds SCIP set.
	Busy bool
	// Hang never completes a cycle.
	Hang bool
	// DropWrites completes this many write cycles without storing the data.
	DropWrites int
	// Fail sets FCERR on every cycle.
	Fail bool
}

// New returns a controller at base with flashSize bytes of flash, erased to
// 0xff. The ME region is described by FREG2 and write access to it is
// granted.
func New(base uintptr, flashSize int, me spi.Region) *Sim {
	s := &Sim{
		base:     base,
		regs:     map[uintptr]uint32{},
		readOnly: map[uintptr]uint32{},
		Flash:    make([]byte, flashSize),
	}
	for i := range s.Flash {
		s.Flash[i] = 0xff
	}
	for i := 0; i < spi.FREG_COUNT; i++ {
		// Unused regions read base 0x7fff and limit 0.
		s.regs[spi.FREG0+uintptr(i)*4] = 0x7fff
		s.readOnly[spi.FREG0+uintptr(i)*4] = 0xffffffff
	}
	s.regs[spi.FREG0+spi.REGION_ME*4] = me.Limit>>spi.FREG_PAGE_SHIFT<<spi.FREG_LIMIT_SHIFT | me.Base>>spi.FREG_PAGE_SHIFT
	s.regs[spi.FRAP] = 0xffff
	// Reserved on this layout.
	s.readOnly[spi.HSFSTS_CTL] = 0x7 << 8
	return s
}

// Set stores a register value without side effects.
func (s *Sim) Set(off uintptr, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[off] = v
}

// Get returns a register value without side effects.
func (s *Sim) Get(off uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[off]
}

// ReadOnly makes the bits in mask of the register at off ignore writes.
func (s *Sim) ReadOnly(off uintptr, mask uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly[off] |= mask
}

// Lock sets FLOCKDN, after which FRAP ignores writes.
func (s *Sim) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[spi.HSFSTS_CTL] |= spi.HSFSTS_FLOCKDN
	s.readOnly[spi.FRAP] = 0xffffffff
}

func (s *Sim) offset(a uintptr) uintptr {
	if a < s.base || a >= s.base+spi.BAR_SIZE {
		panic(fmt.Sprintf("spisim: access at %#08x outside SPI BAR %#08x", a, s.base))
	}
	return a - s.base
}

func (s *Sim) MustRead32(a uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.offset(a)
	v := s.regs[off]
	if off == spi.HSFSTS_CTL && s.Busy {
		v |= spi.HSFSTS_SCIP
	}
	return v
}

func (s *Sim) MustWrite32(a uintptr, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.offset(a)
	s.Writes++
	ro := s.readOnly[off]
	if off != spi.HSFSTS_CTL {
		s.regs[off] = s.regs[off]&ro | v&^ro
		return
	}
	cur := s.regs[off]
	cur &^= v & spi.HSFSTS_W1C
	// FLOCKDN and SCIP are owned by the hardware.
	keep := ro | spi.HSFSTS_W1C | spi.HSFSTS_FLOCKDN | spi.HSFSTS_SCIP
	cur = cur&keep | v&^keep
	s.regs[off] = cur
	if cur&spi.HSFCTL_FGO != 0 {
		s.execute()
	}
}

func (s *Sim) MustRead8(a uintptr) uint8 {
	w := s.MustRead32(a &^ 3)
	return uint8(w >> (8 * (a & 3)))
}

func (s *Sim) MustWrite8(a uintptr, v uint8) {
	aligned := a &^ 3
	shift := 8 * (a & 3)
	w := s.MustRead32(aligned)
	s.MustWrite32(aligned, w&^(0xff<<shift)|uint32(v)<<shift)
}

func (s *Sim) Close() error {
	return nil
}

func (s *Sim) execute() {
	ctl := s.regs[spi.HSFSTS_CTL]
	n := int(ctl>>spi.HSFCTL_FDBC_SHIFT&0x3f) + 1
	cycle := ctl & spi.HSFCTL_FCYCLE_MASK >> spi.HSFCTL_FCYCLE_SHIFT
	addr := s.regs[spi.FADDR]
	write := cycle == spi.FCYCLE_WRITE
	s.Cycles = append(s.Cycles, Cycle{Write: write, Addr: addr, Len: n})
	if s.Hang {
		return
	}
	// FGO self clears, the rest of the control half stays as written.
	ctl &^= spi.HSFCTL_FGO
	switch {
	case s.Fail || int(addr)+n > len(s.Flash) || n > spi.MAX_TRANSACTION:
		ctl |= spi.HSFSTS_FCERR
	case write && s.regs[spi.FRAP]&(1<<(spi.FRAP_BRWA_SHIFT+spi.REGION_ME)) == 0 && s.inME(addr):
		ctl |= spi.HSFSTS_AEL
	case write:
		if s.DropWrites > 0 {
			s.DropWrites--
		} else {
			for i := 0; i < n; i++ {
				w := s.regs[spi.FDATA0+uintptr(i/4*4)]
				s.Flash[int(addr)+i] = byte(w >> (8 * (i % 4)))
			}
		}
		ctl |= spi.HSFSTS_FDONE
	default:
		for i := 0; i < n; i += 4 {
			var w uint32
			for j := 0; j < 4 && i+j < n; j++ {
				w |= uint32(s.Flash[int(addr)+i+j]) << (8 * j)
			}
			s.regs[spi.FDATA0+uintptr(i)] = w
		}
		ctl |= spi.HSFSTS_FDONE
	}
	s.regs[spi.HSFSTS_CTL] = ctl
}

func (s *Sim) inME(addr uint32) bool {
	r, ok := spi.DecodeFREG(s.regs[spi.FREG0+spi.REGION_ME*4])
	return ok && addr >= r.Base && addr <= r.Limit
}
