// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inspect

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/u-root/meflash/cmd/meflash/commands"
	"github.com/u-root/meflash/pkg/fwerr"
)

func memFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	old := commands.Fs
	commands.Fs = fs
	t.Cleanup(func() {
		commands.Fs = old
	})
	return fs
}

// image returns n bytes starting with a one entry partition table.
func image(n int) []byte {
	b := bytes.Repeat([]byte{0xff}, n)
	copy(b, make([]byte, 0x40))
	copy(b, "$FPT")
	binary.LittleEndian.PutUint32(b[4:], 1)
	b[8], b[10] = 0x20, 0x20
	copy(b[0x20:], "FTPR")
	binary.LittleEndian.PutUint32(b[0x28:], 0x100)
	binary.LittleEndian.PutUint32(b[0x2c:], 0x100)
	return b
}

func TestExecute(t *testing.T) {
	fs := memFs(t)
	require.NoError(t, afero.WriteFile(fs, "me.bin", image(0x1000), 0o644))
	require.NoError(t, afero.WriteFile(fs, "blank.bin", bytes.Repeat([]byte{0xff}, 0x1000), 0o644))

	cmd := &Command{Image: "me.bin", Verbose: true}
	assert.NoError(t, cmd.Execute(nil))

	err := cmd.Execute([]string{"extra"})
	assert.ErrorIs(t, err, fwerr.InvalidParameter)

	cmd.Image = "blank.bin"
	assert.ErrorIs(t, cmd.Execute(nil), fwerr.InvalidParameter)

	cmd.Image = "missing.bin"
	assert.ErrorIs(t, cmd.Execute(nil), fwerr.NotFound)
}
