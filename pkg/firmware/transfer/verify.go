// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"fmt"
	"io"

	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/metric"
)

// VerificationResult is the outcome of one verify pass.
type VerificationResult struct {
	// Mismatches counts differing bytes.
	Mismatches int64
	// FirstMismatch is the region offset of the first difference, -1 if
	// there is none.
	FirstMismatch int64
	// Compared is the number of bytes looked at.
	Compared int64
}

func (r VerificationResult) Match() bool {
	return r.Mismatches == 0
}

func (r VerificationResult) String() string {
	if r.Match() {
		return fmt.Sprintf("%d bytes match", r.Compared)
	}
	pct := 100 * float64(r.Mismatches) / float64(r.Compared)
	return fmt.Sprintf("%d of %d bytes differ (%.2f%%), first at offset %#x", r.Mismatches, r.Compared, pct, r.FirstMismatch)
}

// Verify compares the region against src from its start. The whole span is
// always compared so the mismatch count is exact.
func (e *Engine) Verify(src io.ReadSeeker) (VerificationResult, error) {
	const op = fwerr.Op("transfer.Verify")
	res := VerificationResult{FirstMismatch: -1}
	e.start()
	total, err := e.span(src)
	if err != nil {
		return res, e.fail(fwerr.E(op, fwerr.DeviceError, err, "seeking source"))
	}
	want := make([]byte, e.chunk)
	got := make([]byte, e.chunk)
	var off int64
	for off < total {
		n := int64(len(want))
		if total-off < n {
			n = total - off
		}
		if _, err := io.ReadFull(src, want[:n]); err != nil {
			return res, e.fail(fwerr.E(op, fwerr.DeviceError, err, fmt.Sprintf("reading source at %#x", off)))
		}
		at, err := e.transactions(off, got[:n], e.flash.ReadTransaction)
		if err != nil {
			return res, e.fail(fwerr.E(op, err, fmt.Sprintf("region offset %#x", at)))
		}
		for i := int64(0); i < n; i++ {
			if want[i] != got[i] {
				if res.Mismatches == 0 {
					res.FirstMismatch = off + i
				}
				res.Mismatches++
			}
		}
		res.Compared += n
		off = at
		e.advance(off, total)
	}
	metric.TransferBytes.WithLabelValues("verify").Add(float64(total))
	metric.VerifyMismatches.Set(float64(res.Mismatches))
	return res, nil
}
