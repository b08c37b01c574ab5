// Package cli implements the scpctl command tree: a small operator tool for
// exercising SCP endpoints (ping, bulk read/write, a mock endpoint and a
// live watch dashboard).
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	target  string
	verbose bool

	// Shared state set during PersistentPreRun
	cfg *Config
	log *logrus.Logger
)

// rootCmd is the base command for scpctl.
var rootCmd = &cobra.Command{
	Use:   "scpctl",
	Short: "SCP transport CLI — ping targets, run bulk transfers, mock an endpoint",
	Long: `scpctl exercises SCP endpoints over UDP: round-trip single commands,
bulk memory reads and writes, a mock endpoint for local testing, and a live
dashboard watching a target's latency.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = DefaultPath()
		}
		var err error
		cfg, err = LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if target != "" {
			cfg.Target = target
		}

		log = logrus.New()
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		} else {
			log.SetOutput(io.Discard)
		}
		return nil
	},
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.rig-scp/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&target, "target", "t", "", "SCP endpoint address (host:port)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine events to stderr")
}
