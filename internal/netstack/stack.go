// Package netstack is the networking-stack abstraction that owns the listening
// socket and delivers connection lifecycle events to registered callbacks.
package netstack

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

const acceptRetryDelay = 50 * time.Millisecond

// Endpoint is the bound server address. It does not change after Listen.
type Endpoint struct {
	Address string
	Port    int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Acceptor hands a pending connection to the connect-request callback.
type Acceptor interface {
	Accept() (net.Conn, error)
	Addr() net.Addr
}

// Callbacks are the event handlers the stack invokes from its own goroutines.
//
// ConnectRequest returning nil means the connection was taken; the stack then
// watches it for data and disconnects. A non-nil return leaves the stack to
// close the connection.
type Callbacks struct {
	ConnectRequest func(Acceptor) error
	DataReceived   func(net.Conn) error
	Disconnected   func(net.Conn) error
}

// ListenConfig describes the listening socket.
type ListenConfig struct {
	Address string
	Port    int
	Backlog int
}

// Stack owns one listening socket and the goroutines that watch accepted peers.
type Stack struct {
	logger   *slog.Logger
	listener net.Listener
	endpoint Endpoint

	mu    sync.Mutex
	conns map[*peerConn]struct{}
	wg    sync.WaitGroup
}

// Listen binds the server socket. Failure here is a setup failure.
func Listen(cfg ListenConfig, logger *slog.Logger) (*Stack, error) {
	if cfg.Backlog <= 0 {
		cfg.Backlog = 1
	}
	ln, err := listenTCP(cfg.Address, cfg.Port, cfg.Backlog)
	if err != nil {
		return nil, err
	}
	return newStack(ln, logger), nil
}

func newStack(ln net.Listener, logger *slog.Logger) *Stack {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ep := Endpoint{}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		ep.Address = tcp.IP.String()
		ep.Port = tcp.Port
	}
	return &Stack{
		logger:   logger,
		listener: ln,
		endpoint: ep,
		conns:    make(map[*peerConn]struct{}),
	}
}

func (s *Stack) Endpoint() Endpoint {
	return s.endpoint
}

// Serve runs the accept loop until ctx is cancelled or the listener closes.
// Tracked peers are closed on the way out, which fires their Disconnected events.
func (s *Stack) Serve(ctx context.Context, cb Callbacks) error {
	if cb.ConnectRequest == nil || cb.DataReceived == nil || cb.Disconnected == nil {
		return errors.New("netstack: all callbacks must be registered")
	}

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.closeAll()
				s.wg.Wait()
				return nil
			}
			_ = cb.ConnectRequest(&pending{err: err, addr: s.listener.Addr()})
			select {
			case <-ctx.Done():
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		pc := newPeerConn(conn)
		p := &pending{conn: pc, addr: s.listener.Addr()}
		if err := cb.ConnectRequest(p); err != nil {
			_ = pc.Close()
			continue
		}
		s.track(pc)
		go s.watch(pc, cb)
	}
}

// Close stops the listener without waiting for Serve.
func (s *Stack) Close() error {
	return s.listener.Close()
}

// watch turns readability into DataReceived and stream end into Disconnected.
func (s *Stack) watch(pc *peerConn, cb Callbacks) {
	defer s.wg.Done()
	defer s.untrack(pc)

	for {
		_ = pc.SetReadDeadline(time.Time{})
		if _, err := pc.r.Peek(1); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if err := cb.Disconnected(pc); err != nil {
				s.logger.Debug("disconnect callback failed", "error", err.Error())
			}
			return
		}
		if err := cb.DataReceived(pc); errors.Is(err, ErrPeerClosed) {
			return
		}
	}
}

func (s *Stack) track(pc *peerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[pc] = struct{}{}
	s.wg.Add(1)
}

func (s *Stack) untrack(pc *peerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, pc)
}

func (s *Stack) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pc := range s.conns {
		_ = pc.Close()
	}
}

// pending is the Acceptor for one accept attempt.
type pending struct {
	conn  net.Conn
	err   error
	addr  net.Addr
	taken bool
}

func (p *pending) Accept() (net.Conn, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.taken {
		return nil, errors.New("pending connection already accepted")
	}
	p.taken = true
	return p.conn, nil
}

func (p *pending) Addr() net.Addr {
	return p.addr
}

// peerConn buffers reads so the stack can wait for data without consuming it.
type peerConn struct {
	net.Conn
	r *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

func newPeerConn(conn net.Conn) *peerConn {
	return &peerConn{Conn: conn, r: bufio.NewReaderSize(conn, 64)}
}

func (c *peerConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *peerConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

func (c *peerConn) Unwrap() net.Conn {
	return c.Conn
}
