// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package mmio

import (
	"errors"
)

var errUnsupported = errors.New("mmio: physical memory access needs linux")

func OpenWindow(base, size uintptr) (*Window, error) {
	return nil, errUnsupported
}

type physMem struct{}

func PhysMem() Mem {
	return physMem{}
}

func (physMem) MustRead32(uintptr) uint32 {
	panic(errUnsupported)
}

func (physMem) MustRead8(uintptr) uint8 {
	panic(errUnsupported)
}

func (physMem) MustWrite32(uintptr, uint32) {
	panic(errUnsupported)
}

func (physMem) MustWrite8(uintptr, uint8) {
	panic(errUnsupported)
}

func (physMem) Close() error {
	return nil
}
