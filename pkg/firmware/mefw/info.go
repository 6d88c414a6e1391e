// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mefw

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/u-root/meflash/pkg/fwerr"
	"github.com/u-root/meflash/pkg/hardware/intel/spi"
)

type RegionInfo struct {
	Index  int
	Name   string
	Region spi.Region
	Used   bool
	Read   bool
	Write  bool
}

// Info is a snapshot of the controller state relevant to flashing.
type Info struct {
	Platform string
	Base     uintptr
	Regions  []RegionInfo
	FRAP     uint32
	Locked   bool
	Clock    spi.ClockLocation
	// ClockFound is false when no candidate register took the probe and
	// Clock is only the default guess.
	ClockFound bool
	Divider    spi.ClockDivider
}

func (p *Platform) Info() (Info, error) {
	const op = fwerr.Op("mefw.Info")
	info := Info{
		Platform: p.cfg.Platform.Name,
		Base:     p.ctl.Base(),
	}
	var err error
	if info.FRAP, err = p.ctl.ReadRegister(spi.FRAP); err != nil {
		return info, fwerr.E(op, err)
	}
	if info.Locked, err = p.ctl.Locked(); err != nil {
		return info, fwerr.E(op, err)
	}
	for i := 0; i < spi.FREG_COUNT; i++ {
		r, used, err := p.ctl.ReadRegion(i)
		if err != nil {
			return info, fwerr.E(op, err)
		}
		read, write, err := p.ctl.Access(i)
		if err != nil {
			return info, fwerr.E(op, err)
		}
		info.Regions = append(info.Regions, RegionInfo{
			Index:  i,
			Name:   spi.RegionNames[i],
			Region: r,
			Used:   used,
			Read:   read,
			Write:  write,
		})
	}
	info.Clock, info.Divider, err = p.ctl.ClockDivider()
	switch {
	case err == nil:
		info.ClockFound = true
	case !errors.Is(err, fwerr.NotFound):
		return info, fwerr.E(op, err)
	}
	return info, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Render writes the snapshot as tables.
func (i Info) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("%s SPI controller", i.Platform)
	clock := i.Clock.String()
	if !i.ClockFound {
		clock += " (not confirmed)"
	}
	t.AppendRows([]table.Row{
		{"MMIO base", fmt.Sprintf("%#08x", i.Base)},
		{"FRAP", fmt.Sprintf("%#08x", i.FRAP)},
		{"FLOCKDN", yesNo(i.Locked)},
		{"Clock control", clock},
		{"Clock divider", i.Divider.String()},
	})
	t.Render()

	r := table.NewWriter()
	r.SetOutputMirror(w)
	r.SetTitle("Flash regions")
	r.AppendHeader(table.Row{"FREG", "Name", "Range", "Size", "Host read", "Host write"})
	for _, ri := range i.Regions {
		if !ri.Used {
			r.AppendRow(table.Row{ri.Index, ri.Name, "unused", "", "", ""})
			continue
		}
		r.AppendRow(table.Row{ri.Index, ri.Name, ri.Region.String(), humanize.IBytes(uint64(ri.Region.Size())), yesNo(ri.Read), yesNo(ri.Write)})
	}
	r.Render()
}
