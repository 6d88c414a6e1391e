// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mefw

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/u-root/meflash/config"
	"github.com/u-root/meflash/pkg/firmware/transfer"
	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/intel/pci"
	"github.com/u-root/meflash/pkg/hardware/intel/spi"
	"github.com/u-root/meflash/pkg/hardware/intel/spi/spisim"
)

const base uintptr = 0x7c120000

var me = config.Region{Base: 0x1000, Limit: 0x1fff}

func testConfig() *config.Config {
	cfg := *config.DefaultConfig
	cfg.MERegion = me
	return &cfg
}

func sysfs(t *testing.T, vid, did uint16, bar0, bar1 uint32) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	p := config.DefaultConfig.Platform
	dir := filepath.Join(p.SysfsRoot, pciAddress(p.SPIFunction).String())
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	raw := make([]byte, 256)
	binary.LittleEndian.PutUint16(raw[pci.VendorID:], vid)
	binary.LittleEndian.PutUint16(raw[pci.DeviceID:], did)
	binary.LittleEndian.PutUint32(raw[pci.BAR0:], bar0)
	binary.LittleEndian.PutUint32(raw[pci.BAR1:], bar1)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "config"), raw, 0o444))
	return fs
}

func noStall(time.Duration) {}

func open(t *testing.T) (*Platform, *spisim.Sim) {
	t.Helper()
	sim := spisim.New(base, 0x4000, spi.Region{Base: me.Base, Limit: me.Limit})
	p, err := Open(Options{
		Config: testConfig(),
		Fs:     sysfs(t, 0x8086, 0x7e23, uint32(base)|0x4, 0),
		Mem:    sim,
		SPI:    []spi.Option{spi.WithStall(noStall), spi.WithPollIterations(10, 10)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, sim
}

func regionBytes(sim *spisim.Sim) []byte {
	return sim.Flash[me.Base : me.Limit+1]
}

// fptImage is an ME image of n bytes with a one entry partition table.
func fptImage(n int) []byte {
	b := bytes.Repeat([]byte{0x5a}, n)
	copy(b, make([]byte, 0x40))
	copy(b, "$FPT")
	binary.LittleEndian.PutUint32(b[4:], 1)
	b[8], b[10] = 0x20, 0x20
	copy(b[0x20:], "FTPR")
	binary.LittleEndian.PutUint32(b[0x28:], 0x100)
	binary.LittleEndian.PutUint32(b[0x2c:], 0x100)
	return b
}

func TestDiscover(t *testing.T) {
	p := config.DefaultConfig.Platform
	for _, tc := range []struct {
		name       string
		vid, did   uint16
		bar0, bar1 uint32
		want       uintptr
		err        error
	}{
		{"bar64", 0x8086, 0x7e23, 0x7c120004, 0, 0x7c120000, nil},
		{"bar32", 0x8086, 0x7e23, 0x7c120000, 0xdeadbeef, 0x7c120000, nil},
		{"unprogrammed", 0x8086, 0x7e23, 0, 0, p.FallbackBase, nil},
		{"moved", 0x8086, 0x7e23, 0x80000004, 0, p.FallbackBase, nil},
		{"above4g", 0x8086, 0x7e23, 0x7c120004, 1, p.FallbackBase, nil},
		{"wrong device", 0x8086, 0x51a4, 0x7c120004, 0, 0, fwerr.NotFound},
		{"hidden", 0xffff, 0xffff, 0xffffffff, 0xffffffff, 0, fwerr.NotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Discover(sysfs(t, tc.vid, tc.did, tc.bar0, tc.bar1), p)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDiscoverAbsent(t *testing.T) {
	_, err := Discover(afero.NewMemMapFs(), config.DefaultConfig.Platform)
	assert.ErrorIs(t, err, fwerr.NotFound)
}

func TestOpenRegionMismatch(t *testing.T) {
	sim := spisim.New(base, 0x4000, spi.Region{Base: 0x2000, Limit: 0x2fff})
	_, err := Open(Options{
		Config: testConfig(),
		Base:   base,
		Mem:    sim,
	})
	assert.ErrorIs(t, err, fwerr.NotFound)
}

func TestOpenDiscoveryFails(t *testing.T) {
	sim := spisim.New(base, 0x4000, spi.Region{Base: me.Base, Limit: me.Limit})
	_, err := Open(Options{Config: testConfig(), Fs: afero.NewMemMapFs(), Mem: sim})
	assert.ErrorIs(t, err, fwerr.NotFound)
	assert.Zero(t, sim.Writes)
}

func TestRestore(t *testing.T) {
	p, sim := open(t)
	src := bytes.Repeat([]byte{0xaa}, 100)
	var states []transfer.State

	rep, err := p.Restore(bytes.NewReader(src), RestoreOptions{
		SkipInspect: true,
		OnState:     func(s transfer.State) { states = append(states, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StateDone, rep.State)
	assert.Zero(t, rep.Restores)
	assert.Equal(t, src, regionBytes(sim)[:100])
	assert.Equal(t, []transfer.State{transfer.StateWrite, transfer.StateVerify, transfer.StateDone}, states)
	_, changed := p.Controller().ClockSetting()
	assert.False(t, changed, "clock divider left changed")
}

func TestRestoreInspected(t *testing.T) {
	p, sim := open(t)
	img := fptImage(0x1000)

	_, err := p.Restore(bytes.NewReader(img), RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, img, regionBytes(sim))
}

func TestRestoreRejectsNonME(t *testing.T) {
	p, sim := open(t)
	_, err := p.Restore(bytes.NewReader(bytes.Repeat([]byte{0xaa}, 100)), RestoreOptions{Force: true})
	assert.ErrorIs(t, err, fwerr.InvalidParameter)
	assert.Empty(t, sim.Cycles)
}

func TestRestoreOversizedImage(t *testing.T) {
	p, sim := open(t)
	img := fptImage(0x2000)

	_, err := p.Restore(bytes.NewReader(img), RestoreOptions{})
	assert.ErrorIs(t, err, fwerr.InvalidParameter)
	assert.Empty(t, sim.Cycles)

	rep, err := p.Restore(bytes.NewReader(img), RestoreOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0x1000), rep.Result.Compared)
	assert.Equal(t, img[:0x1000], regionBytes(sim))
}

func TestRestoreEmpty(t *testing.T) {
	p, sim := open(t)
	writes := sim.Writes
	_, err := p.Restore(bytes.NewReader(nil), RestoreOptions{SkipInspect: true})
	assert.ErrorIs(t, err, fwerr.InvalidParameter)
	assert.Equal(t, writes, sim.Writes)
	assert.Empty(t, sim.Cycles)
}

func TestRestoreProtected(t *testing.T) {
	p, sim := open(t)
	sim.Set(spi.FRAP, 0x00ff)
	sim.Lock()
	src := bytes.Repeat([]byte{0xaa}, 64)

	_, err := p.Restore(bytes.NewReader(src), RestoreOptions{SkipInspect: true})
	assert.ErrorIs(t, err, fwerr.AccessDenied)
	assert.Empty(t, sim.Cycles)

	rep, err := p.Restore(bytes.NewReader(src), RestoreOptions{SkipInspect: true, Force: true})
	assert.ErrorIs(t, err, fwerr.AccessDenied)
	assert.Equal(t, transfer.StateFailed, rep.State)
	require.Len(t, sim.Cycles, 1)
	assert.True(t, sim.Cycles[0].Write)
	_, changed := p.Controller().ClockSetting()
	assert.False(t, changed, "clock divider left changed")
}

func TestRestoreExhausted(t *testing.T) {
	p, sim := open(t)
	sim.DropWrites = 1 << 30

	rep, err := p.Restore(bytes.NewReader(bytes.Repeat([]byte{0x11}, 32)), RestoreOptions{SkipInspect: true})
	assert.ErrorIs(t, err, transfer.ErrRestoreFailed)
	assert.Equal(t, fwerr.DeviceError, fwerr.KindOf(err))
	assert.Equal(t, 3, rep.Restores)
	_, changed := p.Controller().ClockSetting()
	assert.False(t, changed, "clock divider left changed")
}

func TestDump(t *testing.T) {
	p, sim := open(t)
	for i := range regionBytes(sim) {
		regionBytes(sim)[i] = byte(i * 13)
	}
	var out bytes.Buffer
	n, err := p.Dump(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(0x1000), n)
	assert.Equal(t, regionBytes(sim), out.Bytes())
}

func TestVerify(t *testing.T) {
	p, sim := open(t)
	src := bytes.Repeat([]byte{0xff}, 0x200)
	res, err := p.Verify(bytes.NewReader(src))
	require.NoError(t, err)
	assert.True(t, res.Match())

	regionBytes(sim)[0x40] = 0
	regionBytes(sim)[0x41] = 0
	res, err = p.Verify(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, transfer.VerificationResult{Mismatches: 2, FirstMismatch: 0x40, Compared: 0x200}, res)
	for _, c := range sim.Cycles {
		assert.False(t, c.Write)
	}

	_, err = p.Verify(bytes.NewReader(nil))
	assert.ErrorIs(t, err, fwerr.InvalidParameter)
}

func TestInfo(t *testing.T) {
	p, sim := open(t)
	sim.Set(spi.FRAP, 0x0b0f)

	info, err := p.Info()
	require.NoError(t, err)
	assert.Equal(t, base, info.Base)
	assert.Equal(t, uint32(0x0b0f), info.FRAP)
	assert.False(t, info.Locked)
	assert.True(t, info.ClockFound)
	assert.Equal(t, spi.ClockCandidates[0], info.Clock)
	require.Len(t, info.Regions, spi.FREG_COUNT)
	assert.Equal(t, RegionInfo{Index: 2, Name: "ME", Region: spi.Region{Base: me.Base, Limit: me.Limit}, Used: true, Read: true, Write: false}, info.Regions[2])
	assert.False(t, info.Regions[0].Used)

	var out strings.Builder
	info.Render(&out)
	assert.Contains(t, out.String(), "0x001000-0x001fff")
	assert.Contains(t, out.String(), "Meteor Lake")
}

func TestReadImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/me.bin", []byte{1, 2, 3}, 0o644))
	r, err := ReadImage(fs, "/me.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Size())

	_, err = ReadImage(fs, "/missing.bin")
	assert.ErrorIs(t, err, fwerr.NotFound)
}
