// Package config loads the fieldsync client configuration: a YAML file
// with environment-variable overrides, so a field device can be
// provisioned by file and still re-pointed with FIELDSYNC_* variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Remote configures the backend client.
type Remote struct {
	BaseURL       string   `yaml:"base_url"`
	Token         string   `yaml:"token"`
	Timeout       Duration `yaml:"timeout"`
	ProbeInterval Duration `yaml:"probe_interval"`
}

// Media configures the capture pipeline and its storage budget.
type Media struct {
	MaxItems          int   `yaml:"max_items"`
	MaxBytes          int64 `yaml:"max_bytes"`
	KeepUploadedBlobs bool  `yaml:"keep_uploaded_blobs"`
	MaxLongEdge       int   `yaml:"max_long_edge"`
	JPEGQuality       int   `yaml:"jpeg_quality"`
}

// Sync configures reconciliation.
type Sync struct {
	// CreateWindow bounds the retry window for creating one pending
	// appointment remotely during reconciliation.
	CreateWindow Duration `yaml:"create_window"`
}

// Config is the full client configuration.
type Config struct {
	DatabasePath string `yaml:"database_path"`
	User         string `yaml:"user"`
	Remote       Remote `yaml:"remote"`
	Media        Media  `yaml:"media"`
	Sync         Sync   `yaml:"sync"`
}

// Default returns the production defaults. The user and remote base URL
// have no defaults; they come from the file or environment.
func Default() Config {
	return Config{
		DatabasePath: "fieldsync.db",
		Remote: Remote{
			Timeout:       Duration(15 * time.Second),
			ProbeInterval: Duration(30 * time.Second),
		},
		Media: Media{
			MaxItems:    20,
			MaxBytes:    50 << 20,
			MaxLongEdge: 1600,
			JPEGQuality: 80,
		},
		Sync: Sync{
			CreateWindow: Duration(30 * time.Second),
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, then applies FIELDSYNC_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.DatabasePath = envString("FIELDSYNC_DATABASE", cfg.DatabasePath)
	cfg.User = envString("FIELDSYNC_USER", cfg.User)
	cfg.Remote.BaseURL = envString("FIELDSYNC_REMOTE_URL", cfg.Remote.BaseURL)
	cfg.Remote.Token = envString("FIELDSYNC_REMOTE_TOKEN", cfg.Remote.Token)

	return cfg, nil
}

// Validate checks the fields every command needs.
func (c Config) Validate() error {
	if c.User == "" {
		return fmt.Errorf("user is required (config or FIELDSYNC_USER)")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote base_url is required (config or FIELDSYNC_REMOTE_URL)")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
