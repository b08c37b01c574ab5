package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/project-rig/rig-scp/pkg/conn"
)

var (
	readOutFile string
	readCmd     = &cobra.Command{
		Use:   "read <address> <length>",
		Short: "Bulk-read a byte range from the target's memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseUint32(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			length, err := strconv.Atoi(args[1])
			if err != nil || length < 0 {
				return fmt.Errorf("invalid length %q", args[1])
			}

			c, cleanup, err := dial()
			if err != nil {
				return err
			}
			defer cleanup()

			buf := make([]byte, length)
			start := time.Now()
			if err := transfer(func(cb conn.RWCallback) error {
				return c.Read(cfg.DestAddr, cfg.DestCPU, address, buf, cb)
			}); err != nil {
				return fmt.Errorf("read failed: %w", err)
			}
			elapsed := time.Since(start)

			if readOutFile != "" {
				if err := os.WriteFile(readOutFile, buf, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "read %d bytes in %v -> %s\n",
					length, elapsed.Round(time.Millisecond), readOutFile)
			} else {
				cmd.OutOrStdout().Write(buf)
			}
			return nil
		},
	}

	writeCmd = &cobra.Command{
		Use:   "write <address> <file>",
		Short: "Bulk-write a file into the target's memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseUint32(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			c, cleanup, err := dial()
			if err != nil {
				return err
			}
			defer cleanup()

			start := time.Now()
			if err := transfer(func(cb conn.RWCallback) error {
				return c.Write(cfg.DestAddr, cfg.DestCPU, address, data, cb)
			}); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes in %v\n",
				len(data), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
)

// transfer runs one bulk operation to completion.
func transfer(submit func(conn.RWCallback) error) error {
	type result struct {
		err   error
		cmdRC uint16
	}
	ch := make(chan result, 1)
	if err := submit(func(_ *conn.Conn, err error, cmdRC uint16, _ []byte) {
		ch <- result{err, cmdRC}
	}); err != nil {
		return err
	}
	r := <-ch
	if r.err == conn.ErrBadReturnCode {
		return fmt.Errorf("%w (rc=%#x)", r.err, r.cmdRC)
	}
	return r.err
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func init() {
	readCmd.Flags().StringVarP(&readOutFile, "output", "o", "", "write the data to a file instead of stdout")
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
}
