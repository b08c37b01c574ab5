package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/project-rig/rig-scp/internal/mockmachine"
)

var (
	mockListen  string
	mockMemSize int
	mockCmd     = &cobra.Command{
		Use:   "mock",
		Short: "Run a mock SCP endpoint for local testing",
		Long: `Runs a UDP endpoint with a flat memory image that serves CMD_READ and
CMD_WRITE and echoes every other command, until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mockmachine.NewOn(mockListen, mockMemSize, cfg.FramePadding)
			if err != nil {
				return err
			}
			defer m.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "mock SCP endpoint on %s (%d bytes of memory, frame padding %v)\n",
				m.Addr(), mockMemSize, cfg.FramePadding)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			fmt.Fprintf(cmd.OutOrStdout(), "served %d datagrams\n", m.TotalDatagrams())
			return nil
		},
	}
)

func init() {
	mockCmd.Flags().StringVarP(&mockListen, "listen", "l", "127.0.0.1:17893", "address to listen on")
	mockCmd.Flags().IntVarP(&mockMemSize, "memory", "m", 1<<20, "memory image size in bytes")
	rootCmd.AddCommand(mockCmd)
}
