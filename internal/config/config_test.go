package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() fails validation: %v", err)
	}
	if cfg.Identity != "openclaw" {
		t.Errorf("default identity = %q, want openclaw", cfg.Identity)
	}
	if cfg.Gateway.Port != 18789 {
		t.Errorf("default gateway port = %d, want 18789", cfg.Gateway.Port)
	}
	if cfg.MDNS.Port != 5353 {
		t.Errorf("default mdns port = %d, want 5353", cfg.MDNS.Port)
	}
	if cfg.Ops.Host != "127.0.0.1" {
		t.Errorf("default ops host = %q, want loopback", cfg.Ops.Host)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TRAPGATE_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Port != DefaultConfig().Gateway.Port {
		t.Errorf("missing file did not fall back to defaults")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
identity: hivemesh
gateway:
  port: 28789
store:
  dir: /tmp/trapdata
  window_capacity: 500
`
	if err := os.WriteFile(path, []byte(yaml), 0640); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("TRAPGATE_CONFIG_PATH", path)
	t.Setenv("TRAPGATE_IDENTITY", "agentgate")
	t.Setenv("TRAPGATE_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// Env wins over file.
	if cfg.Identity != "agentgate" {
		t.Errorf("identity = %q, want env override agentgate", cfg.Identity)
	}
	if cfg.Gateway.Port != 28789 {
		t.Errorf("gateway port = %d, want 28789 from file", cfg.Gateway.Port)
	}
	if cfg.Store.WindowCapacity != 500 {
		t.Errorf("window capacity = %d, want 500 from file", cfg.Store.WindowCapacity)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want lowered debug", cfg.Logging.Level)
	}
	// Untouched sections keep defaults.
	if cfg.MDNS.Port != 5353 {
		t.Errorf("mdns port = %d, want default 5353", cfg.MDNS.Port)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero gateway port", func(c *Config) { c.Gateway.Port = 0 }},
		{"same gateway and ops port", func(c *Config) { c.Ops.Port = c.Gateway.Port }},
		{"archive without bucket", func(c *Config) { c.Store.Archive.Enabled = true }},
		{"mirror without address", func(c *Config) { c.Mirror.Enabled = true; c.Mirror.Address = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"empty identity", func(c *Config) { c.Identity = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}
