// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/intel/spi"
	"github.com/u-root/meflash/pkg/hardware/intel/spi/spisim"
)

const base uintptr = 0x7c120000

var me = spi.Region{Base: 0x1000, Limit: 0x3fff}

func noStall(time.Duration) {}

func open(t *testing.T) (*spi.Controller, *spisim.Sim) {
	t.Helper()
	sim := spisim.New(base, 0x4000, me)
	return spi.New(sim, base, spi.WithStall(noStall), spi.WithPollIterations(10, 10)), sim
}

func TestRoundTrip(t *testing.T) {
	c, _ := open(t)
	for n := 1; n <= spi.MAX_TRANSACTION; n++ {
		t.Run(fmt.Sprintf("size%d", n), func(t *testing.T) {
			addr := me.Base + uint32(n)*0x20 + 3
			data := make([]byte, n)
			for i := range data {
				data[i] = byte(n*7 + i)
			}
			require.NoError(t, c.WriteTransaction(addr, data))
			got := make([]byte, n)
			require.NoError(t, c.ReadTransaction(addr, got))
			assert.Equal(t, data, got)
		})
	}
}

func TestInvalidSizeNoRegisterWrites(t *testing.T) {
	c, sim := open(t)
	for _, n := range []int{0, 17} {
		assert.ErrorIs(t, c.WriteTransaction(me.Base, make([]byte, n)), fwerr.InvalidParameter)
		assert.ErrorIs(t, c.ReadTransaction(me.Base, make([]byte, n)), fwerr.InvalidParameter)
	}
	assert.Zero(t, sim.Writes)
	assert.Empty(t, sim.Cycles)
}

func TestWaitIdleStuckBusy(t *testing.T) {
	c, sim := open(t)
	sim.Busy = true
	assert.ErrorIs(t, c.WaitIdle(spi.IdlePollIterations), fwerr.Timeout)
	assert.ErrorIs(t, c.ReadTransaction(me.Base, make([]byte, 4)), fwerr.Timeout)
	assert.Empty(t, sim.Cycles)
}

func TestCycleHang(t *testing.T) {
	c, sim := open(t)
	sim.Hang = true
	assert.ErrorIs(t, c.ReadTransaction(me.Base, make([]byte, 4)), fwerr.Timeout)
	assert.Len(t, sim.Cycles, 1)
}

func TestCycleOutsideFlash(t *testing.T) {
	c, _ := open(t)
	err := c.ReadTransaction(0x3ffc, make([]byte, 8))
	assert.ErrorIs(t, err, fwerr.DeviceError)
	// The error was acknowledged, the next cycle works.
	assert.NoError(t, c.ReadTransaction(0x3ff8, make([]byte, 8)))
}

func snapshot(sim *spisim.Sim) []uint32 {
	var v []uint32
	for _, loc := range spi.ClockCandidates {
		v = append(v, sim.Get(loc.Offset))
	}
	return v
}

func TestProbeIdempotent(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(*spisim.Sim)
		want  spi.ClockLocation
		err   error
	}{
		{"platform", func(*spisim.Sim) {}, spi.ClockCandidates[0], nil},
		{"ssfsts", func(s *spisim.Sim) { s.ReadOnly(spi.CLOCK_CTL, 0x700) }, spi.ClockCandidates[2], nil},
		{"none", func(s *spisim.Sim) {
			s.ReadOnly(spi.CLOCK_CTL, 0x700)
			s.ReadOnly(spi.SSFSTS_CTL, 0x70000)
		}, spi.DefaultClockLocation, fwerr.NotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, sim := open(t)
			tc.setup(sim)
			sim.Set(spi.CLOCK_CTL, 0xa5a5a1a5)
			sim.Set(spi.HSFSTS_CTL, spi.HSFSTS_FLOCKDN|spi.HSFSTS_FDONE)
			sim.Set(spi.SSFSTS_CTL, 0x00050000)
			before := snapshot(sim)

			loc, err := c.ProbeClockControl()
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, loc)
			assert.Equal(t, before, snapshot(sim))
		})
	}
}

func TestSetAndRestoreClock(t *testing.T) {
	c, sim := open(t)
	sim.Set(spi.CLOCK_CTL, 0x00000100)

	require.NoError(t, c.SetClockDivider(spi.DIV_8))
	assert.Equal(t, uint32(0x300), sim.Get(spi.CLOCK_CTL))
	saved, ok := c.ClockSetting()
	require.True(t, ok)
	assert.Equal(t, spi.DIV_2, saved.Divider)

	// A second change keeps the first original.
	require.NoError(t, c.SetClockDivider(spi.DIV_16))
	saved, _ = c.ClockSetting()
	assert.Equal(t, spi.DIV_2, saved.Divider)

	require.NoError(t, c.RestoreClockDivider())
	assert.Equal(t, uint32(0x100), sim.Get(spi.CLOCK_CTL))
	_, ok = c.ClockSetting()
	assert.False(t, ok)

	writes := sim.Writes
	require.NoError(t, c.RestoreClockDivider())
	assert.Equal(t, writes, sim.Writes, "second restore touched registers")
}

func TestClockDivider(t *testing.T) {
	c, sim := open(t)
	sim.ReadOnly(spi.CLOCK_CTL, 0x700)
	sim.Set(spi.SSFSTS_CTL, 0x00020000)

	loc, d, err := c.ClockDivider()
	require.NoError(t, err)
	assert.Equal(t, spi.ClockCandidates[2], loc)
	assert.Equal(t, spi.DIV_4, d)
	assert.Equal(t, uint32(0x00020000), sim.Get(spi.SSFSTS_CTL))
}

func TestSetClockNotSticking(t *testing.T) {
	c, sim := open(t)
	sim.ReadOnly(spi.CLOCK_CTL, 0x700)
	sim.ReadOnly(spi.SSFSTS_CTL, 0x70000)
	sim.Set(spi.CLOCK_CTL, 0x00000200)

	assert.ErrorIs(t, c.SetClockDivider(spi.DIV_8), fwerr.DeviceError)
	saved, ok := c.ClockSetting()
	require.True(t, ok)
	assert.Equal(t, spi.DIV_4, saved.Divider)
	assert.NoError(t, c.RestoreClockDivider())
}

func TestWriteProtection(t *testing.T) {
	c, sim := open(t)
	writes := sim.Writes
	require.NoError(t, c.DisableWriteProtection())
	assert.Equal(t, writes, sim.Writes, "already writable region was touched")

	sim.Set(spi.FRAP, 0x00ff)
	assert.ErrorIs(t, c.WriteTransaction(me.Base, []byte{1}), fwerr.AccessDenied)
	require.NoError(t, c.DisableWriteProtection())
	_, w, err := c.Access(spi.REGION_ME)
	require.NoError(t, err)
	assert.True(t, w)
	assert.NoError(t, c.WriteTransaction(me.Base, []byte{1}))
}

func TestWriteProtectionLocked(t *testing.T) {
	c, sim := open(t)
	sim.Set(spi.FRAP, 0x00ff)
	sim.Lock()

	locked, err := c.Locked()
	require.NoError(t, err)
	assert.True(t, locked)
	assert.ErrorIs(t, c.DisableWriteProtection(), fwerr.AccessDenied)
	assert.Equal(t, uint32(0x00ff), sim.Get(spi.FRAP))
}
