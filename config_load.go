package idemgw

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ValidateConfig validates a Config for correctness. TTL is mandatory:
// retention must be an explicit choice.
func ValidateConfig(cfg Config) error {
	source := cfg.Key.Source
	if source == "" {
		source = SourceHeader
	}
	switch source {
	case SourceHeader, SourceContent, SourceHeaderOrContent:
	default:
		return fmt.Errorf("unknown key source: %q", cfg.Key.Source)
	}

	for _, name := range cfg.Key.HeaderNames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("key header names must be non-empty")
		}
	}

	if cfg.TTLSeconds <= 0 {
		return fmt.Errorf("ttl_seconds is required and must be positive")
	}
	if cfg.LeaseSeconds < 0 {
		return fmt.Errorf("lease_seconds must not be negative")
	}
	if cfg.LeaseSeconds > cfg.TTLSeconds {
		return fmt.Errorf("lease_seconds must not exceed ttl_seconds")
	}

	policy := cfg.InProgress.Policy
	if policy == "" {
		policy = PolicyFail
	}
	switch policy {
	case PolicyFail, PolicyWait:
	default:
		return fmt.Errorf("unknown in-progress policy: %q", cfg.InProgress.Policy)
	}
	if cfg.InProgress.WaitAttempts < 0 || cfg.InProgress.WaitBackoffMS < 0 {
		return fmt.Errorf("in-progress wait parameters must not be negative")
	}

	if cfg.LocalCache.MaxEntries < 0 {
		return fmt.Errorf("local cache max_entries must not be negative")
	}

	switch cfg.Store.Backend {
	case "", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "postgres" && strings.TrimSpace(cfg.Store.DSN) == "" {
		return fmt.Errorf("postgres store requires a dsn")
	}

	return nil
}
