package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/trinity/internal/trinity"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Transport != TransportHTTP {
		t.Errorf("expected transport http, got %s", cfg.Transport)
	}
	if cfg.Timeout <= 0 {
		t.Error("timeout should be positive")
	}
	if cfg.InitialPreset() != trinity.Balanced {
		t.Errorf("expected default preset Balanced, got %s", cfg.InitialPreset())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trinity.yaml")
	data := []byte("endpoint: http://render:9000\ntransport: ws\ntimeout: 5s\nlog:\n  level: DEBUG\nserver:\n  jitter: 250ms\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Endpoint != "http://render:9000" {
		t.Errorf("expected endpoint override, got %s", cfg.Endpoint)
	}
	if cfg.Transport != TransportWS {
		t.Errorf("expected transport ws, got %s", cfg.Transport)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Timeout)
	}
	if cfg.Server.Jitter != 250*time.Millisecond {
		t.Errorf("expected jitter 250ms, got %s", cfg.Server.Jitter)
	}
	if cfg.Retries != DefaultRetries {
		t.Errorf("unset field should keep default, got %d", cfg.Retries)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trinity.yaml")
	cfg := DefaultConfig()
	cfg.DefaultPreset = "Stable"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.InitialPreset() != trinity.Stable {
		t.Errorf("expected Stable, got %s", loaded.InitialPreset())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }},
		{"unknown transport", func(c *Config) { c.Transport = "carrier-pigeon" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"no retries", func(c *Config) { c.Retries = 0 }},
		{"bad preset", func(c *Config) { c.DefaultPreset = "Wobbly" }},
		{"failure rate", func(c *Config) { c.Server.FailureRate = 1.5 }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TRINITY_ENDPOINT", "http://env:1234")
	t.Setenv("TRINITY_TRANSPORT", "WS")
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Endpoint != "http://env:1234" {
		t.Errorf("expected env endpoint, got %s", cfg.Endpoint)
	}
	if cfg.Transport != TransportWS {
		t.Errorf("expected transport ws, got %s", cfg.Transport)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TRINITY_DATA_DIR=/tmp/trinity-env-test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRINITY_DATA_DIR", "")
	os.Unsetenv("TRINITY_DATA_DIR")

	if err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load env failed: %v", err)
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.DataDir != "/tmp/trinity-env-test" {
		t.Errorf("expected data dir from .env, got %s", cfg.DataDir)
	}
}

func TestPresetCatalogue(t *testing.T) {
	list := ListPresets()
	if len(list) != len(trinity.Presets) {
		t.Fatalf("expected %d presets, got %d", len(trinity.Presets), len(list))
	}
	for _, info := range list {
		if info.Name == trinity.Custom {
			if _, ok := NominalDamping(info.Name); ok {
				t.Error("custom preset should have no nominal damping")
			}
			continue
		}
		d, ok := NominalDamping(info.Name)
		if !ok {
			t.Errorf("%s: missing nominal damping", info.Name)
		}
		if d < trinity.MinDamping || d > trinity.MaxDamping {
			t.Errorf("%s: nominal damping %f out of range", info.Name, d)
		}
	}
}
