package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "iptable",
	Short: "Drop IPv4 traffic from blacklisted sources at the XDP hook",
	Long: `iptable attaches an XDP classifier to a network interface. Frames whose IPv4
source address matches a blacklisted prefix are dropped before they reach the
kernel network stack; everything else passes untouched.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
