//go:build !linux

package netstack

import (
	"fmt"
	"net"
)

func applyKeepAlive(conn *net.TCPConn, k KeepAlive) error {
	err := conn.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     k.Idle,
		Interval: k.Interval,
		Count:    k.Count,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeepAlive, err)
	}
	return nil
}

// listenTCP falls back to the platform default backlog.
func listenTCP(address string, port, _ int) (net.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(address, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return ln, nil
}
