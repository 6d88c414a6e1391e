// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pci reads PCI configuration space through sysfs.
package pci

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	VendorID = 0x00
	DeviceID = 0x02
	Command  = 0x04
	BAR0     = 0x10
	BAR1     = 0x14

	// Size of the config space readable without root.
	legacyConfigSize = 0x100
)

// Address is a PCI function on segment 0.
type Address struct {
	Bus, Device, Function uint8
}

func (a Address) String() string {
	return fmt.Sprintf("0000:%02x:%02x.%x", a.Bus, a.Device, a.Function)
}

// Config is a snapshot of a function's configuration space. Reads past what
// the kernel exposed return all ones, the same as an absent function.
type Config struct {
	Addr Address
	raw  []byte
}

// ReadConfig loads the config space of addr from root, usually
// /sys/bus/pci/devices. A function that is not listed, which includes
// functions hidden by firmware, yields a Config reading all ones.
func ReadConfig(fs afero.Fs, root string, addr Address) (*Config, error) {
	path := filepath.Join(root, addr.String(), "config")
	f, err := fs.Open(path)
	if err != nil {
		if exists, _ := afero.Exists(fs, filepath.Join(root, addr.String())); !exists {
			return &Config{Addr: addr}, nil
		}
		return nil, err
	}
	defer f.Close()
	raw := make([]byte, legacyConfigSize)
	n, err := io.ReadFull(f, raw)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &Config{Addr: addr, raw: raw[:n]}, nil
}

// Present reports whether the function responded at all.
func (c *Config) Present() bool {
	return c.Read16(VendorID) != 0xffff
}

func (c *Config) Read16(off int) uint16 {
	if off < 0 || off+2 > len(c.raw) {
		return 0xffff
	}
	return binary.LittleEndian.Uint16(c.raw[off:])
}

func (c *Config) Read32(off int) uint32 {
	if off < 0 || off+4 > len(c.raw) {
		return 0xffffffff
	}
	return binary.LittleEndian.Uint32(c.raw[off:])
}

// MemBAR returns the memory base address programmed in the BAR at off with
// the flag bits masked. 64 bit BARs take their upper half from off+4.
func (c *Config) MemBAR(off int) uint64 {
	lo := c.Read32(off)
	if lo == 0xffffffff {
		return 0xffffffffffffffff
	}
	base := uint64(lo &^ 0xf)
	// Bits 2:1 == 10b is a 64 bit memory BAR.
	if lo&0x6 == 0x4 {
		base |= uint64(c.Read32(off+4)) << 32
	}
	return base
}
