// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"github.com/u-root/u-root/pkg/memio"
)

type physMem struct{}

// PhysMem reaches any physical address, one access at a time. It is meant
// for inspecting single registers, use a Window for anything sustained.
func PhysMem() Mem {
	return physMem{}
}

func (physMem) MustRead32(address uintptr) uint32 {
	var v memio.Uint32
	if err := memio.Read(int64(address), &v); err != nil {
		panic(err)
	}
	return uint32(v)
}

func (physMem) MustRead8(address uintptr) uint8 {
	var v memio.Uint8
	if err := memio.Read(int64(address), &v); err != nil {
		panic(err)
	}
	return uint8(v)
}

func (physMem) MustWrite32(address uintptr, data uint32) {
	v := memio.Uint32(data)
	if err := memio.Write(int64(address), &v); err != nil {
		panic(err)
	}
}

func (physMem) MustWrite8(address uintptr, data uint8) {
	v := memio.Uint8(data)
	if err := memio.Write(int64(address), &v); err != nil {
		panic(err)
	}
}

func (physMem) Close() error {
	return nil
}
