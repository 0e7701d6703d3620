// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TCP.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.TCP.Port)
	}
	if cfg.TCP.Framing != FramingAuto {
		t.Errorf("Framing = %q, want %q", cfg.TCP.Framing, FramingAuto)
	}
	if cfg.TCP.MaxFrameLength != 1<<20 {
		t.Errorf("MaxFrameLength = %d, want %d", cfg.TCP.MaxFrameLength, 1<<20)
	}
	if !cfg.TCP.RespondEnabled {
		t.Errorf("RespondEnabled = false, want true")
	}
	if cfg.TCP.DetectWindow != 64 {
		t.Errorf("DetectWindow = %d, want 64", cfg.TCP.DetectWindow)
	}
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
tcp:
  port: 15020
  framing: modbus-rtu
  max-frame-length: 4096
  respond-enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TCP.Port != 15020 {
		t.Errorf("Port = %d, want 15020", cfg.TCP.Port)
	}
	if cfg.TCP.Framing != FramingModbusRTU {
		t.Errorf("Framing = %q, want %q", cfg.TCP.Framing, FramingModbusRTU)
	}
	if cfg.TCP.MaxFrameLength != 4096 {
		t.Errorf("MaxFrameLength = %d, want 4096", cfg.TCP.MaxFrameLength)
	}
	if cfg.TCP.RespondEnabled {
		t.Errorf("RespondEnabled = true, want false")
	}
}

func TestLoadConfigRejectsUnknownFraming(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tcp:\n  framing: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for unknown framing mode")
	}
}
