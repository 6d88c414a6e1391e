// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transfer moves a flash region to and from a byte stream through
// the controller's small hardware transactions, and checks the result.
package transfer

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/intel/spi"
	"github.com/u-root/meflash/pkg/logger"
	"github.com/u-root/meflash/pkg/metric"
)

var log = logger.LogContainer.GetSimpleLogger()

const (
	DefaultChunkSize       = 256
	DefaultTransactionSize = spi.MAX_TRANSACTION
	DefaultProgressStride  = 64 * 1024
)

// Flash is a device accepting single hardware transactions, *spi.Controller
// being the real one.
type Flash interface {
	ReadTransaction(addr uint32, buf []byte) error
	WriteTransaction(addr uint32, data []byte) error
}

// Engine runs one pass at a time over region. N and Err may be called from
// other goroutines to follow a pass.
type Engine struct {
	flash    Flash
	region   spi.Region
	chunk    int
	tx       int
	stride   int64
	progress func(done, total int64)

	n   int64
	mu  sync.Mutex
	err error
}

type Option func(*Engine)

// WithChunkSize sets how many bytes are read from the stream at once.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		e.chunk = n
	}
}

// WithTransactionSize sets the bytes per hardware transaction.
func WithTransactionSize(n int) Option {
	return func(e *Engine) {
		e.tx = n
	}
}

// WithProgress calls f every time a pass crosses a multiple of stride bytes
// and when it ends.
func WithProgress(stride int64, f func(done, total int64)) Option {
	return func(e *Engine) {
		e.stride = stride
		e.progress = f
	}
}

func New(flash Flash, region spi.Region, opts ...Option) *Engine {
	e := &Engine{
		flash:  flash,
		region: region,
		chunk:  DefaultChunkSize,
		tx:     DefaultTransactionSize,
		stride: DefaultProgressStride,
	}
	for _, o := range opts {
		o(e)
	}
	if e.tx < 1 || e.tx > spi.MAX_TRANSACTION {
		e.tx = DefaultTransactionSize
	}
	if e.chunk < e.tx {
		e.chunk = e.tx
	}
	if e.stride < 1 {
		e.stride = DefaultProgressStride
	}
	return e
}

func (e *Engine) Region() spi.Region {
	return e.region
}

// N is the number of bytes handled by the current pass.
func (e *Engine) N() int64 {
	return atomic.LoadInt64(&e.n)
}

// Err is the error that ended the last pass, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) start() {
	atomic.StoreInt64(&e.n, 0)
	e.setErr(nil)
}

func (e *Engine) setErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *Engine) fail(err error) error {
	e.setErr(err)
	return err
}

func (e *Engine) advance(done, total int64) {
	prev := atomic.SwapInt64(&e.n, done)
	if e.progress == nil {
		return
	}
	if done/e.stride != prev/e.stride || done == total {
		e.progress(done, total)
	}
}

// Length returns the size of src and leaves it positioned at the start.
func Length(src io.Seeker) (int64, error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}

// span clips a pass to what both the region and the stream hold.
func (e *Engine) span(src io.Seeker) (int64, error) {
	size, err := Length(src)
	if err != nil {
		return 0, err
	}
	if rs := e.region.Size(); size > rs {
		log.Warnf("stream holds %d bytes, only the %d bytes of region %v are used", size, rs, e.region)
		return rs, nil
	}
	return size, nil
}

// transactions issues do for every tx sized piece of buf, which sits at
// region offset off.
func (e *Engine) transactions(off int64, buf []byte, do func(uint32, []byte) error) (int64, error) {
	for sub := 0; sub < len(buf); sub += e.tx {
		end := sub + e.tx
		if end > len(buf) {
			end = len(buf)
		}
		if err := do(e.region.Base+uint32(off)+uint32(sub), buf[sub:end]); err != nil {
			return off + int64(sub), err
		}
	}
	return off + int64(len(buf)), nil
}

// Write programs the region from the start of src. Only as many bytes as
// both src and the region hold are written.
func (e *Engine) Write(src io.ReadSeeker) (int64, error) {
	const op = fwerr.Op("transfer.Write")
	e.start()
	total, err := e.span(src)
	if err != nil {
		return 0, e.fail(fwerr.E(op, fwerr.DeviceError, err, "seeking source"))
	}
	buf := make([]byte, e.chunk)
	var off int64
	for off < total {
		n := int64(len(buf))
		if total-off < n {
			n = total - off
		}
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return off, e.fail(fwerr.E(op, fwerr.DeviceError, err, fmt.Sprintf("reading source at %#x", off)))
		}
		at, err := e.transactions(off, buf[:n], e.flash.WriteTransaction)
		if err != nil {
			return at, e.fail(fwerr.E(op, err, fmt.Sprintf("region offset %#x", at)))
		}
		off = at
		e.advance(off, total)
	}
	metric.TransferBytes.WithLabelValues("write").Add(float64(total))
	return total, nil
}

// Read copies the whole region into dst.
func (e *Engine) Read(dst io.Writer) (int64, error) {
	const op = fwerr.Op("transfer.Read")
	e.start()
	total := e.region.Size()
	buf := make([]byte, e.chunk)
	var off int64
	for off < total {
		n := int64(len(buf))
		if total-off < n {
			n = total - off
		}
		at, err := e.transactions(off, buf[:n], e.flash.ReadTransaction)
		if err != nil {
			// Hand over what was read before the failing cycle.
			if _, werr := dst.Write(buf[:at-off]); werr != nil {
				at = off
			}
			return at, e.fail(fwerr.E(op, err, fmt.Sprintf("region offset %#x", at)))
		}
		if _, err := dst.Write(buf[:n]); err != nil {
			return off, e.fail(fwerr.E(op, fwerr.DeviceError, err, fmt.Sprintf("writing output at %#x", off)))
		}
		off = at
		e.advance(off, total)
	}
	metric.TransferBytes.WithLabelValues("read").Add(float64(total))
	return total, nil
}
