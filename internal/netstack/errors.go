package netstack

import (
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	// ErrPeerClosed marks a send or receive that found the peer stream closed.
	ErrPeerClosed = errors.New("peer closed the connection")
	// ErrKeepAlive marks a keep-alive configuration failure; the connection stays usable.
	ErrKeepAlive = errors.New("configure keep-alive")
)

// IsPeerClosed reports whether err means the peer stream is gone.
func IsPeerClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPeerClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
