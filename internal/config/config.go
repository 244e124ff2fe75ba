// Package config handles configuration loading for trapgate. The protocol
// and storage packages consume the resolved Config as an opaque object; all
// file and environment parsing happens here.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Identity string        `yaml:"identity" validate:"required"`
	Gateway  GatewayConfig `yaml:"gateway"`
	MDNS     MDNSConfig    `yaml:"mdns"`
	Ops      OpsConfig     `yaml:"ops"`
	Store    StoreConfig   `yaml:"store"`
	Mirror   MirrorConfig  `yaml:"mirror"`
	Logging  LoggingConfig `yaml:"logging"`
}

// GatewayConfig holds settings for the attacker-facing HTTP/WebSocket port.
type GatewayConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// MaxBodyBytes bounds how much of a request body is read and recorded.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"min=1"`
}

// MDNSConfig holds settings for the multicast DNS responder.
type MDNSConfig struct {
	Enabled bool `yaml:"enabled"`
	// Port is the mDNS listen port. Only changed in tests; the protocol
	// lives on 5353.
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

// OpsConfig holds settings for the operator read API. It binds loopback by
// default so capture data is never exposed on the attacker-facing interface.
type OpsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
}

// StoreConfig holds attack record store settings.
type StoreConfig struct {
	Dir            string        `yaml:"dir" validate:"required"`
	WindowCapacity int           `yaml:"window_capacity" validate:"min=1"`
	ReloadDays     int           `yaml:"reload_days" validate:"min=1"`
	RetentionDays  int           `yaml:"retention_days" validate:"min=1"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
	Archive        ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig holds optional S3 archival settings for pruned daily logs.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// MirrorConfig holds optional Redis live-mirror settings.
type MirrorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Identity: "openclaw",
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18789,
			ReadTimeout:  30 * time.Second,
			MaxBodyBytes: 1 << 20, // 1MB
		},
		MDNS: MDNSConfig{
			Enabled: true,
			Port:    5353,
		},
		Ops: OpsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9411,
		},
		Store: StoreConfig{
			Dir:            "data",
			WindowCapacity: 2000,
			ReloadDays:     7,
			RetentionDays:  30,
			PruneInterval:  time.Hour,
			Archive: ArchiveConfig{
				Enabled: false,
				Region:  "us-east-1",
				Prefix:  "archives/",
			},
		},
		Mirror: MirrorConfig{
			Enabled: false,
			Address: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("TRAPGATE_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if identity := os.Getenv("TRAPGATE_IDENTITY"); identity != "" {
		c.Identity = identity
	}

	if port := os.Getenv("TRAPGATE_GATEWAY_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Gateway.Port)
	}

	if host := os.Getenv("TRAPGATE_GATEWAY_HOST"); host != "" {
		c.Gateway.Host = host
	}

	if dir := os.Getenv("TRAPGATE_DATA_DIR"); dir != "" {
		c.Store.Dir = dir
	}

	if level := os.Getenv("TRAPGATE_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}

	if enabled := os.Getenv("TRAPGATE_MDNS_ENABLED"); enabled == "false" {
		c.MDNS.Enabled = false
	}

	if addr := os.Getenv("TRAPGATE_MIRROR_ADDR"); addr != "" {
		c.Mirror.Address = addr
		c.Mirror.Enabled = true
	}

	if bucket := os.Getenv("TRAPGATE_ARCHIVE_BUCKET"); bucket != "" {
		c.Store.Archive.Bucket = bucket
		c.Store.Archive.Enabled = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Gateway.Port == c.Ops.Port {
		return fmt.Errorf("gateway and ops ports must differ (both %d)", c.Gateway.Port)
	}

	if c.Store.Archive.Enabled && c.Store.Archive.Bucket == "" {
		return fmt.Errorf("archive enabled but no bucket configured")
	}

	if c.Mirror.Enabled && c.Mirror.Address == "" {
		return fmt.Errorf("mirror enabled but no address configured")
	}

	return nil
}
