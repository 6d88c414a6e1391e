// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/metric"
)

const DefaultMaxRestores = 3

type State int

const (
	StateWrite State = iota
	StateVerify
	StateRestore
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateWrite:   "write",
	StateVerify:  "verify",
	StateRestore: "restore",
	StateDone:    "done",
	StateFailed:  "failed",
}

func (s State) String() string {
	return stateNames[s]
}

// ErrRestoreFailed means the region still differs from the image after
// every restore attempt. The flash is in an unknown state.
var ErrRestoreFailed = errors.New("flash does not match the image, manual recovery required")

var errMismatch = errors.New("verify mismatch")

type Report struct {
	State    State
	Restores int
	// Result is the last verify pass, Passes holds all of them in order.
	Result VerificationResult
	Passes []VerificationResult
}

// Session writes an image, verifies it and rewrites it a bounded number of
// times until it reads back intact.
type Session struct {
	engine      *Engine
	maxRestores uint64
	onState     func(State)
}

func NewSession(e *Engine, maxRestores uint64) *Session {
	return &Session{engine: e, maxRestores: maxRestores}
}

// OnState registers f to be called on every state change.
func (s *Session) OnState(f func(State)) {
	s.onState = f
}

func (s *Session) enter(r *Report, st State) {
	r.State = st
	log.Debugf("session state %v", st)
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Session) exhausted(r *Report) error {
	return fwerr.E(fwerr.DeviceError, ErrRestoreFailed, fmt.Sprintf("restoration failed after %d attempts, %v", r.Restores, r.Result))
}

// Run drives the session to StateDone or StateFailed. Transaction and
// stream errors end it at once without further restores.
func (s *Session) Run(src io.ReadSeeker) (Report, error) {
	const op = fwerr.Op("transfer.Session")
	r := Report{Result: VerificationResult{FirstMismatch: -1}}

	s.enter(&r, StateWrite)
	if _, err := s.engine.Write(src); err != nil {
		s.enter(&r, StateFailed)
		return r, fwerr.E(op, err)
	}

	verify := func() error {
		s.enter(&r, StateVerify)
		res, err := s.engine.Verify(src)
		r.Result = res
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Passes = append(r.Passes, res)
		if res.Match() {
			return nil
		}
		log.Warnf("verify after %d restores: %v", r.Restores, res)
		if uint64(r.Restores) >= s.maxRestores {
			return backoff.Permanent(s.exhausted(&r))
		}
		s.enter(&r, StateRestore)
		r.Restores++
		metric.RestoreAttempts.Inc()
		if _, err := s.engine.Write(src); err != nil {
			return backoff.Permanent(err)
		}
		return errMismatch
	}
	notify := func(error, time.Duration) {
		log.Infof("restore attempt %d of %d written", r.Restores, s.maxRestores)
	}

	b := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, s.maxRestores)
	if err := backoff.RetryNotify(verify, b, notify); err != nil {
		s.enter(&r, StateFailed)
		if errors.Is(err, errMismatch) {
			err = s.exhausted(&r)
		}
		return r, fwerr.E(op, err)
	}
	s.enter(&r, StateDone)
	return r, nil
}
