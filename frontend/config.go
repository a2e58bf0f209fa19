package frontend

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/tcassar-diss/iptable/blacklist"
	"github.com/tcassar-diss/iptable/bpf"
)

// Config is the daemon configuration file.
//
//	interface = "eth0"
//	mode = "driver"
//	capacity = 16
//	blacklist = "/etc/iptable/blacklist.toml"
type Config struct {
	Interface     string `toml:"interface"`
	Mode          string `toml:"mode"`
	Capacity      int    `toml:"capacity"`
	BlacklistPath string `toml:"blacklist"`
}

// DefaultConfig attaches to lo in generic mode with 16 entries.
func DefaultConfig() *Config {
	return &Config{
		Interface: "lo",
		Mode:      string(bpf.Generic),
		Capacity:  blacklist.DefaultCapacity,
	}
}

// LoadConfig reads path over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise only fail at attach time.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("%w: interface must be set", ErrInvalidConfig)
	}

	if _, err := bpf.ParseAttachMode(c.Mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity %d", ErrInvalidConfig, c.Capacity)
	}

	if c.BlacklistPath != "" {
		if _, err := os.Stat(c.BlacklistPath); err != nil {
			return fmt.Errorf("%w: blacklist: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}
