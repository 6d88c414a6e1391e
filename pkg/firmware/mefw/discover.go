// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mefw

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/u-root/meflash/config"
	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/intel/pci"
)

func pciAddress(a config.PCIAddress) pci.Address {
	return pci.Address{Bus: a.Bus, Device: a.Device, Function: a.Function}
}

// Discover returns the MMIO base of the SPI controller described by p. The
// function must identify as the expected controller. A BAR that reads
// unprogrammed or differs from the known base is replaced by
// p.FallbackBase.
func Discover(fs afero.Fs, p config.Platform) (uintptr, error) {
	const op = fwerr.Op("mefw.Discover")
	addr := pciAddress(p.SPIFunction)
	cfg, err := pci.ReadConfig(fs, p.SysfsRoot, addr)
	if err != nil {
		return 0, fwerr.E(op, fwerr.DeviceError, err)
	}
	vid, did := cfg.Read16(pci.VendorID), cfg.Read16(pci.DeviceID)
	if vid != p.VendorID || did != p.DeviceID {
		return 0, fwerr.E(op, fwerr.NotFound, fmt.Sprintf("%v is %04x:%04x, expected %04x:%04x (%s)", addr, vid, did, p.VendorID, p.DeviceID, p.Name))
	}
	log.Infof("SPI controller %04x:%04x at %v", vid, did, addr)

	bar := cfg.MemBAR(pci.BAR0)
	switch {
	case bar == 0 || bar == 0xffffffffffffffff:
		log.Warnf("SPI BAR0 of %v is not programmed, using %#08x", addr, p.FallbackBase)
		return p.FallbackBase, nil
	case bar != uint64(p.FallbackBase):
		log.Warnf("SPI BAR0 of %v is %#x, expected %#08x, using the expected base", addr, bar, p.FallbackBase)
		return p.FallbackBase, nil
	}
	return uintptr(bar), nil
}
