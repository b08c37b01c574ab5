package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// scpctlVersion is set at build time via -ldflags "-X github.com/project-rig/rig-scp/internal/cli.scpctlVersion=x.y.z"
var scpctlVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the scpctl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "scpctl version %s\n", scpctlVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
