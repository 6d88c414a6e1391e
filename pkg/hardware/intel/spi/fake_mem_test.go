// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"
	"testing"
	"time"
)

const testBase uintptr = 0x7c120000

type op struct {
	write   bool
	address uintptr
	data32  uint32
}

// fakeMem replays a script of expected register accesses.
type fakeMem struct {
	t   *testing.T
	ops []op
}

func opstr(o *op) string {
	t := "read"
	if o.write {
		t = "write"
	}
	return fmt.Sprintf("{%s @ %08x (%s) = %08x}", t, o.address, RegisterName(o.address-testBase), o.data32)
}

func (m *fakeMem) next(what string, a uintptr) op {
	m.t.Helper()
	if len(m.ops) == 0 {
		m.t.Fatalf("Unexpected %s on %08x (%s)", what, a, RegisterName(a-testBase))
	}
	o := m.ops[0]
	m.ops = m.ops[1:]
	return o
}

func (m *fakeMem) MustRead32(a uintptr) uint32 {
	m.t.Helper()
	o := m.next("32 bit read", a)
	if o.write || o.address != a {
		m.t.Errorf("Expected %s, got 32 bit read on %08x", opstr(&o), a)
	}
	return o.data32
}

func (m *fakeMem) MustWrite32(a uintptr, d uint32) {
	m.t.Helper()
	o := m.next("32 bit write", a)
	if !o.write || o.address != a || o.data32 != d {
		m.t.Errorf("Expected %s, got 32 bit write of %08x on %08x", opstr(&o), d, a)
	}
}

func (m *fakeMem) MustRead8(a uintptr) uint8 {
	m.t.Fatalf("Unexpected 8 bit read on %08x", a)
	return 0
}

func (m *fakeMem) MustWrite8(a uintptr, d uint8) {
	m.t.Fatalf("Unexpected 8 bit write of %02x on %08x", d, a)
}

// ExpectWrite32 and FakeRead32 take offsets from testBase.
func (m *fakeMem) ExpectWrite32(off uintptr, d uint32) {
	m.ops = append(m.ops, op{true, testBase + off, d})
}

func (m *fakeMem) FakeRead32(off uintptr, d uint32) {
	m.ops = append(m.ops, op{false, testBase + off, d})
}

// Done fails the test if part of the script was not consumed.
func (m *fakeMem) Done() {
	m.t.Helper()
	for i := range m.ops {
		m.t.Errorf("Expected %s, never happened", opstr(&m.ops[i]))
	}
}

func (m *fakeMem) Close() error {
	return nil
}

func fakeMemory(t *testing.T) *fakeMem {
	return &fakeMem{t, make([]op, 0)}
}

type stalls struct {
	n     int
	total time.Duration
}

func (s *stalls) stall(d time.Duration) {
	s.n++
	s.total += d
}

func openFake(t *testing.T, opts ...Option) (*Controller, *fakeMem, *stalls) {
	fm := fakeMemory(t)
	st := &stalls{}
	c := New(fm, testBase, append([]Option{WithStall(st.stall)}, opts...)...)
	return c, fm, st
}
