package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: test
feed:
  symbols:
    - BTC/USDT:USDT
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Exchange.Name != "binanceusdm" {
		t.Fatalf("unexpected exchange name: %s", cfg.Exchange.Name)
	}
	if cfg.Exchange.PollInterval != 2*time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.Exchange.PollInterval)
	}
	if cfg.Engine.RequestsPerSecond != 8.0 || cfg.Engine.Burst != 16 {
		t.Fatalf("unexpected engine budget: %+v", cfg.Engine)
	}
	if cfg.Engine.GridSpacing != "arithmetic" {
		t.Fatalf("unexpected grid spacing: %s", cfg.Engine.GridSpacing)
	}
	if cfg.Feed.WSBaseURL != "wss://fstream.binance.com/ws" {
		t.Fatalf("unexpected ws url: %s", cfg.Feed.WSBaseURL)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
feed:
  symbols:
    - ETH/USDT:USDT
  reconnect_delay: 2s
  max_reconnect_delay: 10s
engine:
  requests_per_second: 4
  grid_spacing: geometric
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Feed.Symbols) != 1 || cfg.Feed.Symbols[0] != "ETH/USDT:USDT" {
		t.Fatalf("unexpected symbols: %v", cfg.Feed.Symbols)
	}
	if cfg.Feed.ReconnectDelay != 2*time.Second {
		t.Fatalf("unexpected reconnect delay: %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.Engine.RequestsPerSecond != 4 || cfg.Engine.GridSpacing != "geometric" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
engine:
  grid_spacing: diagonal
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown grid spacing")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors for zero config")
	}
}
