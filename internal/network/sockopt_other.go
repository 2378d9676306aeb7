//go:build !linux && !windows

package network

import (
	"net"
	"time"
)

// ListenConfig returns a listener setup with only TCP keepalive configured.
func ListenConfig(keepAlive time.Duration) net.ListenConfig {
	return net.ListenConfig{KeepAlive: keepAlive}
}
