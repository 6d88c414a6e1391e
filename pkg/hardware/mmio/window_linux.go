// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var devMem = "/dev/mem"

// OpenWindow maps size bytes of physical memory at base. base and size must
// be page aligned.
func OpenWindow(base, size uintptr) (*Window, error) {
	ps := uintptr(unix.Getpagesize())
	if base%ps != 0 || size%ps != 0 || size == 0 {
		return nil, fmt.Errorf("mmio: window %#08x+%#x is not page aligned", base, size)
	}
	fd, err := unix.Open(devMem, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", devMem, err)
	}
	mem, err := unix.Mmap(fd, int64(base), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmio: mmap %#08x+%#x: %w", base, size, err)
	}
	w := NewWindowFromBytes(base, mem)
	w.close = func() error {
		merr := unix.Munmap(mem)
		cerr := unix.Close(fd)
		if merr != nil {
			return merr
		}
		return cerr
	}
	return w, nil
}
