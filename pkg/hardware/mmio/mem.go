// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmio gives register level access to physical memory.
//
// Addresses handed to a Mem are absolute physical addresses, which keeps
// driver code and test scripts in the same terms as the datasheets.
package mmio

// Mem is volatile access to a range of physical memory. The Must* accessors
// panic when the address is outside of what the provider can reach, that is
// a programming error and not a device condition.
type Mem interface {
	MustRead32(uintptr) uint32
	MustRead8(uintptr) uint8
	MustWrite32(uintptr, uint32)
	MustWrite8(uintptr, uint8)
	Close() error
}
