package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tcassar-diss/iptable/frontend"
)

// addConfigFlags registers the flags buildConfig reads.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "TOML config file; flags override its values")
	cmd.Flags().String("interface", "", "network interface to attach to (default lo)")
	cmd.Flags().String("mode", "", "XDP attach mode: generic, driver or offload (default generic)")
	cmd.Flags().Int("capacity", 0, "maximum number of blacklist entries (default 16)")
	cmd.Flags().String("blacklist", "", "TOML blacklist loaded before attaching")
}

// buildConfig reads --config (if given) and applies the flags that were set
// explicitly on top of it.
func buildConfig(cmd *cobra.Command) (*frontend.Config, error) {
	cfg := frontend.DefaultConfig()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	if path != "" {
		cfg, err = frontend.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()

	if flags.Changed("interface") {
		if cfg.Interface, err = flags.GetString("interface"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("mode") {
		if cfg.Mode, err = flags.GetString("mode"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("capacity") {
		if cfg.Capacity, err = flags.GetInt("capacity"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("blacklist") {
		if cfg.BlacklistPath, err = flags.GetString("blacklist"); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
