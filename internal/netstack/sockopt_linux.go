//go:build linux

package netstack

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// applyKeepAlive sets interval, count, and idle time, then enables keep-alive.
// A failure partway leaves the connection on the stack's default timeouts.
func applyKeepAlive(conn *net.TCPConn, k KeepAlive) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeepAlive, err)
	}

	var optErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		opts := []struct {
			name  string
			level int
			opt   int
			value int
		}{
			{"TCP_KEEPINTVL", unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, seconds(k.Interval)},
			{"TCP_KEEPCNT", unix.IPPROTO_TCP, unix.TCP_KEEPCNT, k.Count},
			{"TCP_KEEPIDLE", unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, seconds(k.Idle)},
			{"SO_KEEPALIVE", unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1},
		}
		for _, o := range opts {
			if err := unix.SetsockoptInt(int(fd), o.level, o.opt, o.value); err != nil {
				optErr = fmt.Errorf("%w: set %s: %v", ErrKeepAlive, o.name, err)
				return
			}
		}
	})
	if ctrlErr != nil {
		return fmt.Errorf("%w: %v", ErrKeepAlive, ctrlErr)
	}
	return optErr
}

// listenTCP binds a stream socket and listens with an explicit backlog, which
// the net package does not expose.
func listenTCP(address string, port, backlog int) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(address, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve listen address: %w", err)
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		in4 := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 != nil {
			copy(in4.Addr[:], ip4)
		}
		sa = in4
	} else {
		domain = unix.AF_INET6
		in6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(in6.Addr[:], addr.IP.To16())
		sa = in6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("create socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	f := os.NewFile(uintptr(fd), "ledlink-listener")
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("wrap listener: %w", err)
	}
	return ln, nil
}
