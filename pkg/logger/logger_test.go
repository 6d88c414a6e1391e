// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfigureLogFile(t *testing.T) {
	log := LogContainer.GetSimpleLogger()
	path := filepath.Join(t.TempDir(), "meflash.log")
	if err := LogContainer.Configure(Options{LogFile: path, Debug: true}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	// The logger fetched before Configure follows the new destinations.
	log.Debugw("cycle done", "addr", "0x126000")
	LogContainer.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(b))
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log file line %q is not JSON: %v", line, err)
	}
	if entry["msg"] != "cycle done" || entry["addr"] != "0x126000" || entry["level"] != "DEBUG" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestConfigureLevel(t *testing.T) {
	if err := LogContainer.Configure(Options{}); err != nil {
		t.Fatal(err)
	}
	if LogContainer.GetLogger().Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug enabled without Debug")
	}
	if err := LogContainer.Configure(Options{Debug: true}); err != nil {
		t.Fatal(err)
	}
	if !LogContainer.GetLogger().Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug disabled with Debug")
	}
}

func TestConfigureBadPath(t *testing.T) {
	if err := LogContainer.Configure(Options{LogFile: filepath.Join(t.TempDir(), "missing", "x.log")}); err == nil {
		t.Fatal("Configure succeeded on an unwritable path")
	}
}

func TestHex(t *testing.T) {
	if f := LogContainer.Hex("addr", 0x126000); f.String != "0x126000" {
		t.Errorf("Hex = %q", f.String)
	}
}
