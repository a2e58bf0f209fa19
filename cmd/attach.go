package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tcassar-diss/iptable/frontend"
	"go.uber.org/zap"
)

// attachCmd represents the attach command
var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach the classifier to an interface and manage its blacklist from stdin.",
	Long: `
Attach loads the XDP classifier, fills the blacklist and attaches to an interface.
It runs until interrupted, reading control commands from stdin:

	add <addr|cidr> [rule]
	del <addr|cidr>
	check <addr>
	list

USAGE
	iptable attach [--config iptable.toml] [--interface eth0] [--mode generic|driver|offload]
	               [--capacity 16] [--blacklist blacklist.toml] [--no-control]
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		l, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("failed to get zap production logger: %v", err)
		}

		logger := l.Sugar()
		defer logger.Sync()

		cfg, err := buildConfig(cmd)
		if err != nil {
			logger.Fatalw("invalid arguments (iptable attach -h for help)", "err", err)
		}

		runCfg := &frontend.RunCfg{Config: cfg}

		noControl, err := cmd.Flags().GetBool("no-control")
		if err != nil {
			logger.Fatalw("failed to get no-control flag", "err", err)
		}

		if !noControl {
			runCfg.Control = os.Stdin
			runCfg.Replies = os.Stdout
		}

		if err := frontend.Run(context.Background(), logger, runCfg); err != nil {
			logger.Fatalw("fatal error while filtering", "interface", cfg.Interface, "err", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)

	addConfigFlags(attachCmd)
	attachCmd.Flags().Bool("no-control", false, "do not read control commands from stdin")
}
