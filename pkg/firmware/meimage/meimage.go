// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package meimage looks at an ME firmware image before it is flashed. It
// locates the flash partition table and lists the partitions it describes.
package meimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/linuxboot/fiano/pkg/intel/me"

	"github.com/u-root/meflash/pkg/fwerr"
)

// The partition table sits on a 4KiB boundary.
const fptAlign = 0x1000

var (
	fptMarker       = []byte("$FPT")
	legacyFPTMarker = append(make([]byte, 16), fptMarker...)
)

type Partition struct {
	Name   string
	Owner  string
	Offset uint32
	Length uint32
	// Data partitions hold state rather than code.
	Data  bool
	Valid bool
	// Truncated is set when the partition reaches past the end of the image.
	Truncated bool
}

type Image struct {
	Size       int64
	FPTOffset  int64
	Legacy     bool
	Partitions []Partition
	// Info is the table header and entries as decoded by fiano.
	Info string
}

func findFPT(b []byte) (int, bool) {
	for i := 0; i < len(b); i += fptAlign {
		if bytes.HasPrefix(b[i:], fptMarker) {
			return i, false
		}
		if bytes.HasPrefix(b[i:], legacyFPTMarker) {
			return i, true
		}
	}
	return -1, false
}

// Inspect parses the flash partition table of an ME image.
func Inspect(b []byte) (*Image, error) {
	const op = fwerr.Op("meimage.Inspect")
	if len(b) == 0 {
		return nil, fwerr.E(op, fwerr.InvalidParameter, "empty image")
	}
	off, legacy := findFPT(b)
	if off < 0 {
		return nil, fwerr.E(op, fwerr.InvalidParameter, "not an ME image, no flash partition table")
	}
	if _, err := me.ParseIntelME(bytes.NewReader(b[off:])); err != nil {
		return nil, fwerr.E(op, fwerr.InvalidParameter, err, "not an ME image")
	}
	img := &Image{
		Size:      int64(len(b)),
		FPTOffset: int64(off),
		Legacy:    legacy,
	}

	var info strings.Builder
	r := bytes.NewReader(b[off:])
	var entries, hlen int
	if legacy {
		var h me.LegacyFlashPartitionTableHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return nil, fwerr.E(op, fwerr.InvalidParameter, err)
		}
		entries, hlen = int(h.NumFptEntries), int(h.HeaderLength)
		info.WriteString(h.String())
	} else {
		var h me.FlashPartitionTableHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return nil, fwerr.E(op, fwerr.InvalidParameter, err)
		}
		entries, hlen = int(h.NumFptEntries), int(h.HeaderLength)
		info.WriteString(h.String())
	}
	if off+hlen > len(b) {
		return nil, fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("header length %#x past the image", hlen))
	}

	r = bytes.NewReader(b[off+hlen:])
	for i := 0; i < entries; i++ {
		var e me.FlashPartitionTableEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return nil, fwerr.E(op, fwerr.InvalidParameter, err, fmt.Sprintf("partition entry %d", i))
		}
		info.WriteString(e.String())
		end := int64(off) + int64(e.Offset) + int64(e.Length)
		img.Partitions = append(img.Partitions, Partition{
			Name:      string(bytes.Trim(e.Name[:], "\x00")),
			Owner:     string(bytes.Trim(e.Owner[:], "\x00")),
			Offset:    e.Offset,
			Length:    e.Length,
			Data:      e.Flags&1 != 0,
			Valid:     e.Flags>>24 != 0xff,
			Truncated: e.Length != 0 && end > img.Size,
		})
	}
	img.Info = info.String()
	return img, nil
}

// Check reports whether the image is fit for a region of regionSize bytes.
// Only the leading regionSize bytes of a larger image are ever written.
func (img *Image) Check(regionSize int64) error {
	const op = fwerr.Op("meimage.Check")
	if img.Size > regionSize {
		return fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("image is %s, the region only %s", humanize.IBytes(uint64(img.Size)), humanize.IBytes(uint64(regionSize))))
	}
	for _, p := range img.Partitions {
		if p.Truncated {
			return fwerr.E(op, fwerr.InvalidParameter, fmt.Sprintf("partition %s ends past the image", p.Name))
		}
	}
	return nil
}

// Render writes the partition list as a table.
func (img *Image) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	kind := "$FPT"
	if img.Legacy {
		kind = "legacy $FPT"
	}
	t.SetTitle("%s at %#x, image %s", kind, img.FPTOffset, humanize.IBytes(uint64(img.Size)))
	t.AppendHeader(table.Row{"Name", "Owner", "Offset", "Length", "Size", "Type", "Valid"})
	for _, p := range img.Partitions {
		typ := "code"
		if p.Data {
			typ = "data"
		}
		valid := "yes"
		switch {
		case p.Truncated:
			valid = "truncated"
		case !p.Valid:
			valid = "no"
		}
		t.AppendRow(table.Row{p.Name, p.Owner, fmt.Sprintf("%#x", p.Offset), fmt.Sprintf("%#x", p.Length), humanize.IBytes(uint64(p.Length)), typ, valid})
	}
	t.Render()
}
