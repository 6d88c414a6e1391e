// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Window is a fixed mapping of [Base, Base+len) that is set up once and
// reused for every access.
type Window struct {
	base  uintptr
	mem   []byte
	close func() error
}

// NewWindowFromBytes serves accesses at base from buf instead of a device
// mapping. buf must be 4 byte aligned, which anything from make is.
func NewWindowFromBytes(base uintptr, buf []byte) *Window {
	return &Window{base: base, mem: buf}
}

// Base is the physical address of the first byte of the window.
func (w *Window) Base() uintptr {
	return w.base
}

// Size is the number of bytes mapped.
func (w *Window) Size() uintptr {
	return uintptr(len(w.mem))
}

func (w *Window) offset(address uintptr, width uintptr) uintptr {
	if address < w.base || address+width > w.base+uintptr(len(w.mem)) {
		panic(fmt.Sprintf("mmio: access of %d bytes at %#08x outside window %#08x+%#x", width, address, w.base, len(w.mem)))
	}
	off := address - w.base
	if off%width != 0 {
		panic(fmt.Sprintf("mmio: unaligned %d byte access at %#08x", width, address))
	}
	return off
}

// 32 bit accesses go through sync/atomic so the compiler emits exactly one
// load or store of the full width for every call.
func (w *Window) MustRead32(address uintptr) uint32 {
	off := w.offset(address, 4)
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&w.mem[off])))
}

func (w *Window) MustWrite32(address uintptr, data uint32) {
	off := w.offset(address, 4)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&w.mem[off])), data)
}

func (w *Window) MustRead8(address uintptr) uint8 {
	off := w.offset(address, 1)
	return *(*uint8)(unsafe.Pointer(&w.mem[off]))
}

func (w *Window) MustWrite8(address uintptr, data uint8) {
	off := w.offset(address, 1)
	*(*uint8)(unsafe.Pointer(&w.mem[off])) = data
}

func (w *Window) Close() error {
	if w.close == nil {
		return nil
	}
	c := w.close
	w.close = nil
	w.mem = nil
	return c()
}
