package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pigeon/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	ListenAddr     string `toml:"listen_addr"`
	// UserID is the identity this session acts as. Credential issuance is
	// handled by an external service; the daemon only needs the resolved id.
	UserID string `toml:"user_id"`
}

// DefaultListenAddr is used when listen_addr is unset.
const DefaultListenAddr = "127.0.0.1:7474"

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ListenAddrOrDefault returns the configured listen address or the default.
func (c *Config) ListenAddrOrDefault() string {
	if c == nil || c.ListenAddr == "" {
		return DefaultListenAddr
	}
	return c.ListenAddr
}
