// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/machinebox/progress"
	"golang.org/x/sync/errgroup"

	"github.com/u-root/meflash/pkg/firmware/transfer"
)

const tickInterval = 200 * time.Millisecond

// Tracker prints the progress of transfer passes while they run.
type Tracker struct {
	out    io.Writer
	size   int64
	g      errgroup.Group
	cancel context.CancelFunc
}

func NewTracker(size int64) *Tracker {
	return &Tracker{out: os.Stderr, size: size}
}

// Pass starts following a new pass of e under label and stops following
// the previous one.
func (t *Tracker) Pass(e *transfer.Engine, label string) {
	t.stop()
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	size := t.size
	t.g.Go(func() error {
		for p := range progress.NewTicker(ctx, e, size, tickInterval) {
			fmt.Fprintf(t.out, "%s: %3d %% (%s of %s)\r", label, int(p.Percent()), humanize.IBytes(uint64(p.N())), humanize.IBytes(uint64(size)))
		}
		fmt.Fprintf(t.out, "\n")
		return nil
	})
}

func (t *Tracker) stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Wait stops following and waits for the last line to be printed.
func (t *Tracker) Wait() {
	t.stop()
	_ = t.g.Wait()
}
