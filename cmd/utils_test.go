package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/iptable/frontend"
)

func TestBuildConfig(t *testing.T) {
	dir := t.TempDir()

	blacklistPath := filepath.Join(dir, "blacklist.toml")
	require.NoError(t, os.WriteFile(blacklistPath, []byte("[rules]\n\"10.0.0.5\" = 1\n"), 0o644))

	configPath := filepath.Join(dir, "iptable.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
interface = "eth0"
mode = "driver"
capacity = 64
`), 0o644))

	tests := []struct {
		name     string
		args     []string
		expected *frontend.Config
		err      error
	}{
		{
			name:     "defaults",
			expected: frontend.DefaultConfig(),
		},
		{
			name:     "config file",
			args:     []string{"--config", configPath},
			expected: &frontend.Config{Interface: "eth0", Mode: "driver", Capacity: 64},
		},
		{
			name: "flags override config file",
			args: []string{"--config", configPath, "--mode", "generic", "--blacklist", blacklistPath},
			expected: &frontend.Config{
				Interface:     "eth0",
				Mode:          "generic",
				Capacity:      64,
				BlacklistPath: blacklistPath,
			},
		},
		{
			name:     "explicit zero capacity overrides file",
			args:     []string{"--config", configPath, "--capacity", "0"},
			expected: &frontend.Config{Interface: "eth0", Mode: "driver", Capacity: 0},
		},
		{
			name:     "flags without config file",
			args:     []string{"--interface", "veth1", "--capacity", "4"},
			expected: &frontend.Config{Interface: "veth1", Mode: "generic", Capacity: 4},
		},
		{
			name: "bad mode",
			args: []string{"--mode", "skb"},
			err:  frontend.ErrInvalidConfig,
		},
		{
			name: "negative capacity",
			args: []string{"--capacity", "-1"},
			err:  frontend.ErrInvalidConfig,
		},
		{
			name: "empty interface",
			args: []string{"--interface", ""},
			err:  frontend.ErrInvalidConfig,
		},
		{
			name: "missing blacklist",
			args: []string{"--blacklist", filepath.Join(dir, "missing.toml")},
			err:  frontend.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "attach"}
			addConfigFlags(cmd)

			require.NoError(t, cmd.Flags().Parse(tt.args))

			cfg, err := buildConfig(cmd)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expected, cfg)
		})
	}
}
