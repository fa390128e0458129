package netstack

import (
	"fmt"
	"net"
	"time"
)

// KeepAlive holds the three probe tunables. All three are required before
// keep-alive is enabled on a connection.
type KeepAlive struct {
	Idle     time.Duration
	Interval time.Duration
	Count    int
}

func (k KeepAlive) validate() error {
	if k.Idle <= 0 {
		return fmt.Errorf("%w: idle time must be > 0", ErrKeepAlive)
	}
	if k.Interval <= 0 {
		return fmt.Errorf("%w: probe interval must be > 0", ErrKeepAlive)
	}
	if k.Count <= 0 {
		return fmt.Errorf("%w: probe count must be > 0", ErrKeepAlive)
	}
	return nil
}

// SetKeepAlive applies k to conn. Errors wrap ErrKeepAlive.
func SetKeepAlive(conn net.Conn, k KeepAlive) error {
	if err := k.validate(); err != nil {
		return err
	}

	tcp, ok := underlyingTCP(conn)
	if !ok {
		return fmt.Errorf("%w: %T is not a TCP connection", ErrKeepAlive, conn)
	}
	return applyKeepAlive(tcp, k)
}

func underlyingTCP(conn net.Conn) (*net.TCPConn, bool) {
	for conn != nil {
		if tcp, ok := conn.(*net.TCPConn); ok {
			return tcp, true
		}
		u, ok := conn.(interface{ Unwrap() net.Conn })
		if !ok {
			return nil, false
		}
		conn = u.Unwrap()
	}
	return nil, false
}

// seconds rounds d up to whole seconds, the unit of the TCP socket options.
func seconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
