// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fwerr provides the error handling used by the flash tooling.
// The core part is the constructor function E().
package fwerr

import (
	"errors"
	"strings"
)

// Op describes an operation, usually as the name of the method.
type Op string

// Kind classifies a failure. Every Kind maps to a distinct exit status.
type Kind int

const (
	Other Kind = iota
	InvalidParameter
	NotReady
	NotFound
	AccessDenied
	DeviceError
	Timeout
	OutOfResources
)

var kindNames = map[Kind]string{
	Other:            "error",
	InvalidParameter: "invalid parameter",
	NotReady:         "not ready",
	NotFound:         "not found",
	AccessDenied:     "access denied",
	DeviceError:      "device error",
	Timeout:          "timeout",
	OutOfResources:   "out of resources",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error lets a Kind act as a sentinel, errors.Is(err, fwerr.Timeout) holds
// for any Error of that kind.
func (k Kind) Error() string {
	return k.String()
}

// ExitCode is the process status reported for a failure of this kind.
func (k Kind) ExitCode() int {
	if k == Other {
		return 1
	}
	return int(k) + 1
}

// Error provides structured context. Some fields may be left unset.
//
// An Error value should be created using the E() function.
type Error struct {
	// Op is the operation being executed when the error occurred.
	Op Op
	// Kind is the class of failure.
	Kind Kind
	// Err is the underlying wrapped error.
	Err error
	// Info holds details like offsets or expected and actual values.
	Info string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(string(e.Op))
		b.WriteString(": ")
	}
	// A wrapped Error of the same kind already names it.
	var sep string
	if inner, ok := e.Err.(*Error); !ok || inner.Kind != e.Kind {
		b.WriteString(e.Kind.String())
		sep = ": "
	}
	if e.Info != "" {
		b.WriteString(sep)
		b.WriteString(e.Info)
		sep = ": "
	}
	if e.Err != nil {
		b.WriteString(sep)
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind against this error's kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// E returns an Error constructed from its arguments.
// The type of each argument determines its meaning. If more than one
// argument of a given type is presented, only the last one is recorded.
//
// The types are:
//
//	fwerr.Op    the performed operation
//	fwerr.Kind  the class of failure
//	error       the underlying error, wrapped
//	string      additional information
//
// If no Kind is given and the wrapped error carries one, it is inherited.
func E(args ...interface{}) error {
	e := &Error{}
	kindSet := false
	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case Kind:
			e.Kind = arg
			kindSet = true
		case error:
			e.Err = arg
		case string:
			e.Info = arg
		}
	}
	if !kindSet && e.Err != nil {
		e.Kind = KindOf(e.Err)
	}
	return e
}

// KindOf returns the kind of the outermost Error in err's chain, or Other.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Other
}
