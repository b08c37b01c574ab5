package cli

import (
	"fmt"
	"time"

	"github.com/project-rig/rig-scp/pkg/conn"
	"github.com/project-rig/rig-scp/pkg/transport"
)

// dial opens a connection to the configured target on a fresh event loop.
// The returned cleanup tears the connection down and stops the loop.
func dial() (*conn.Conn, func(), error) {
	loop := transport.NewLoop()
	go loop.Run()

	c, err := conn.Open(loop, cfg.Target, conn.Config{
		DataLength:   cfg.DataLength,
		Timeout:      cfg.Timeout(),
		Attempts:     cfg.Attempts,
		Window:       cfg.Window,
		FramePadding: cfg.FramePadding,
		Logger:       log,
	})
	if err != nil {
		loop.Stop()
		return nil, nil, fmt.Errorf("failed to open connection to %s: %w", cfg.Target, err)
	}

	cleanup := func() {
		closed := make(chan struct{})
		c.Close(func() { close(closed) })
		select {
		case <-closed:
		case <-time.After(5 * time.Second):
		}
		loop.Stop()
	}
	return c, cleanup, nil
}
