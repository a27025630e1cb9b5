package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load with missing file: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Binance.WSURL != "wss://fstream.binance.com/stream" {
		t.Errorf("ws url = %q", cfg.Binance.WSURL)
	}
	if len(cfg.Binance.Symbols) != 1 || cfg.Binance.Symbols[0] != "btcusdt" {
		t.Errorf("symbols = %v", cfg.Binance.Symbols)
	}
	if cfg.Feed.MaxReconnectAttempts != 5 || cfg.Feed.PollIntervalSec != 2 {
		t.Errorf("feed defaults = %+v", cfg.Feed)
	}
	if cfg.History.RetentionDays != 30 {
		t.Errorf("retention = %d, want 30", cfg.History.RetentionDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  port: 8080\nbinance:\n  symbols: [ETHUSDT, solusdt]\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	// Symbols are normalized to lowercase.
	if len(cfg.Binance.Symbols) != 2 || cfg.Binance.Symbols[0] != "ethusdt" {
		t.Errorf("symbols = %v", cfg.Binance.Symbols)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SYMBOLS", "btcusdt, ethusdt")
	t.Setenv("SERVERCHAN_UID", "u123")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Binance.Symbols) != 2 || cfg.Binance.Symbols[1] != "ethusdt" {
		t.Errorf("symbols = %v", cfg.Binance.Symbols)
	}
	if cfg.ServerChan.UID != "u123" {
		t.Errorf("uid = %q", cfg.ServerChan.UID)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 0")
	}

	cfg, _ = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg.Binance.Symbols = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty symbols")
	}
}
