package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/project-rig/rig-scp/pkg/conn"
)

var (
	pingCount int
	pingCmd   = &cobra.Command{
		Use:   "ping",
		Short: "Round-trip single SCP commands against the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := dial()
			if err != nil {
				return err
			}
			defer cleanup()

			okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
			failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

			var ok, lost int
			for i := 0; i < pingCount; i++ {
				rtt, err := pingOnce(c)
				if err != nil {
					lost++
					fmt.Fprintf(cmd.OutOrStdout(), "seq %d: %s\n",
						i, failStyle.Render(conn.ErrName(err)))
					continue
				}
				ok++
				fmt.Fprintf(cmd.OutOrStdout(), "seq %d: %s\n",
					i, okStyle.Render(rtt.Round(time.Microsecond).String()))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d responses, %d lost\n", ok, lost)
			if lost > 0 {
				return fmt.Errorf("%d of %d pings lost", lost, pingCount)
			}
			return nil
		},
	}
)

// pingOnce round-trips one argument-free SCP command and measures its
// latency.
func pingOnce(c *conn.Conn) (time.Duration, error) {
	type result struct {
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()
	err := c.SendSCP(cfg.DestAddr, cfg.DestCPU, 0, 0, 0, 0, 0, 0, nil,
		func(_ *conn.Conn, err error, _ uint16, _ int, _, _, _ uint32, _ []byte) {
			ch <- result{err}
		})
	if err != nil {
		return 0, err
	}
	r := <-ch
	return time.Since(start), r.err
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 4, "number of pings to send")
	rootCmd.AddCommand(pingCmd)
}
