// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"errors"
	"testing"

	"github.com/u-root/meflash/pkg/fwerr"
)

var meRegion = Region{Base: 0x00126000, Limit: 0x00ec7fff}

func TestDecodeFREG(t *testing.T) {
	for _, tc := range []struct {
		v    uint32
		want Region
		ok   bool
	}{
		{0x0ec70126, meRegion, true},
		{0x00000000, Region{0, 0xfff}, true},
		{0x00007fff, Region{0x7fff000, 0xfff}, false},
		{0x0fff0ec8, Region{0xec8000, 0xffffff}, true},
	} {
		got, ok := DecodeFREG(tc.v)
		if got != tc.want || ok != tc.ok {
			t.Errorf("DecodeFREG(%#08x) = %v, %v, want %v, %v", tc.v, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRegionSize(t *testing.T) {
	if got := meRegion.Size(); got != 0xda2000 {
		t.Fatalf("Size = %#x", got)
	}
	if got := (Region{Base: 0x2000, Limit: 0x1fff}).Size(); got != 0 {
		t.Fatalf("Empty region size = %d", got)
	}
}

func TestVerifyRegion(t *testing.T) {
	for _, want := range []Region{meRegion, {Base: 0x00126000, Limit: 0x00ec7000}} {
		c, fm, _ := openFake(t)
		fm.FakeRead32(FREG0+REGION_ME*4, 0x0ec70126)
		if err := c.VerifyRegion(want); err != nil {
			t.Errorf("VerifyRegion(%v): %v", want, err)
		}
		fm.Done()
	}
}

func TestVerifyRegionMismatch(t *testing.T) {
	for _, freg := range []uint32{0x0ec70127, 0x0ec60126, 0x00007fff} {
		c, fm, _ := openFake(t)
		fm.FakeRead32(FREG0+REGION_ME*4, freg)
		if err := c.VerifyRegion(meRegion); !errors.Is(err, fwerr.NotFound) {
			t.Errorf("FREG2 %#08x: expected not found, got %v", freg, err)
		}
		fm.Done()
	}
}

func TestReadRegion(t *testing.T) {
	c, fm, _ := openFake(t)
	fm.FakeRead32(FREG0+4, 0x01250003)
	r, ok, err := c.ReadRegion(REGION_BIOS)
	if err != nil || !ok || r != (Region{0x3000, 0x125fff}) {
		t.Fatalf("ReadRegion = %v, %v, %v", r, ok, err)
	}
	if _, _, err := c.ReadRegion(FREG_COUNT); !errors.Is(err, fwerr.InvalidParameter) {
		t.Fatalf("Expected invalid parameter, got %v", err)
	}
	fm.Done()
}
