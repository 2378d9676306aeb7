//go:build windows

package network

import (
	"net"
	"syscall"
	"time"
)

// ListenConfig returns the game listener's socket setup. SO_REUSEADDR lets
// a restarted server rebind a port still in TIME_WAIT.
func ListenConfig(keepAlive time.Duration) net.ListenConfig {
	return net.ListenConfig{
		KeepAlive: keepAlive,
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
}
