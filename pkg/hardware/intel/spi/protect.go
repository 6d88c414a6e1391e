// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"

	"github.com/u-root/meflash/pkg/fwerr"
)

func brra(region int) uint32 {
	return 1 << (FRAP_BRRA_SHIFT + region)
}

func brwa(region int) uint32 {
	return 1 << (FRAP_BRWA_SHIFT + region)
}

// Locked reports FLOCKDN. Once set, FRAP and the FREGs are read-only until
// the next reset.
func (c *Controller) Locked() (bool, error) {
	if err := c.ready("spi.Locked"); err != nil {
		return false, err
	}
	return c.read32(HSFSTS_CTL)&HSFSTS_FLOCKDN != 0, nil
}

// Access reports the host read and write grants for a flash region.
func (c *Controller) Access(region int) (read, write bool, err error) {
	const op = fwerr.Op("spi.Access")
	if region < 0 || region >= 8 {
		return false, false, fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("region %d", region))
	}
	if err := c.ready(op); err != nil {
		return false, false, err
	}
	frap := c.read32(FRAP)
	return frap&brra(region) != 0, frap&brwa(region) != 0, nil
}

// DisableWriteProtection grants the host write access to the ME region. If
// the grant does not stick, usually because FLOCKDN is set, the result is
// AccessDenied. Callers may still go ahead, writes will then fail with
// AccessDenied from the controller.
func (c *Controller) DisableWriteProtection() error {
	const op = fwerr.Op("spi.DisableWriteProtection")
	if err := c.ready(op); err != nil {
		return err
	}
	frap := c.read32(FRAP)
	if frap&brwa(REGION_ME) != 0 {
		return nil
	}
	locked := c.read32(HSFSTS_CTL)&HSFSTS_FLOCKDN != 0
	if locked {
		log.Warnf("FLOCKDN is set, FRAP is expected to be read-only")
	}
	if err := c.waitIdle(); err != nil {
		return fwerr.E(op, err)
	}
	c.write32(FRAP, frap|brwa(REGION_ME))
	c.stall(ProtectionSettleDelay)
	got := c.read32(FRAP)
	if got&brwa(REGION_ME) == 0 {
		info := fmt.Sprintf("ME region write grant did not stick, FRAP %#08x", got)
		if locked {
			info += ", FLOCKDN set"
		}
		return fwerr.E(op, fwerr.AccessDenied, info)
	}
	log.Infof("ME region write protection cleared, FRAP %#08x", got)
	return nil
}
