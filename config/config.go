// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

// Overridden at link time with -X github.com/u-root/meflash/config.gitVersion=...
var (
	gitVersion = "dev"
	gitHash    = "unknown"
)

type Version struct {
	Version string
	GitHash string
}

// PCIAddress is a bus/device/function triple on PCI segment 0.
type PCIAddress struct {
	Bus      uint8
	Device   uint8
	Function uint8
}

// Platform describes where the SPI controller lives on one chipset.
type Platform struct {
	Name         string
	SPIFunction  PCIAddress
	VendorID     uint16
	DeviceID     uint16
	FallbackBase uintptr
	WindowSize   uintptr
	SysfsRoot    string
}

// Region is an inclusive flash address range.
type Region struct {
	Base  uint32
	Limit uint32
}

type Transfer struct {
	ChunkSize          int
	TransactionSize    int
	ProgressStride     int64
	MaxRestoreAttempts uint64
	// Field value of the clock divider used while writing, 3 is divide-by-8.
	ClockDivider uint32
}

type Config struct {
	Platform Platform
	MERegion Region
	Transfer Transfer
	LogFile  string
	Version  Version
}

var DefaultConfig = &Config{
	// Meteor Lake PCH, SPI flash controller at 00:1f.5. The firmware on
	// most boards hides the function after boot. Its IDs then read all ones,
	// discovery fails with NotFound and the BAR has to be given with --base.
	// FallbackBase is used when the function is visible but its BAR reads
	// unprogrammed or moved.
	Platform: Platform{
		Name:         "Meteor Lake",
		SPIFunction:  PCIAddress{Bus: 0x00, Device: 0x1f, Function: 0x5},
		VendorID:     0x8086,
		DeviceID:     0x7e23,
		FallbackBase: 0x7c120000,
		WindowSize:   0x1000,
		SysfsRoot:    "/sys/bus/pci/devices",
	},

	MERegion: Region{
		Base:  0x00126000,
		Limit: 0x00ec7fff,
	},

	// Hardware sequencing moves at most 16 bytes per cycle. The host side
	// buffers 256 bytes at a time to keep file I/O off the hot path.
	Transfer: Transfer{
		ChunkSize:          256,
		TransactionSize:    16,
		ProgressStride:     64 * 1024,
		MaxRestoreAttempts: 3,
		ClockDivider:       3,
	},

	Version: Version{
		Version: gitVersion,
		GitHash: gitHash,
	},
}
