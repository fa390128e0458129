// Package events implements the connect, receive, and disconnect reactions
// the network stack invokes for the single peer.
package events

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/fsm"
	"github.com/rbright/ledlink/internal/netstack"
	"github.com/rbright/ledlink/internal/registry"
)

// ErrAcceptFailed wraps an accept error; the server keeps listening.
var ErrAcceptFailed = errors.New("accept incoming connection")

const (
	DefaultMaxReceive     = 20
	DefaultReceiveTimeout = 500 * time.Millisecond
)

// Cues receives best-effort lifecycle notifications.
type Cues interface {
	PeerConnected(addr string)
	AckReceived(ledOn bool)
	PeerDisconnected()
}

type noopCues struct{}

func (noopCues) PeerConnected(string) {}
func (noopCues) AckReceived(bool)     {}
func (noopCues) PeerDisconnected()    {}

// Config tunes the receive path and peer keep-alive.
type Config struct {
	KeepAlive      netstack.KeepAlive
	MaxReceive     int
	ReceiveTimeout time.Duration
	// ListenPort is only used for the "listening" announcement.
	ListenPort int
	// SetKeepAlive defaults to netstack.SetKeepAlive.
	SetKeepAlive func(net.Conn, netstack.KeepAlive) error
}

// Set is the event callback set bound to one registry and command state.
type Set struct {
	cfg      Config
	registry *registry.Registry
	state    *command.State
	logger   *slog.Logger
	cues     Cues
}

func NewSet(cfg Config, reg *registry.Registry, state *command.State, logger *slog.Logger, cues Cues) *Set {
	if cfg.MaxReceive <= 0 {
		cfg.MaxReceive = DefaultMaxReceive
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = DefaultReceiveTimeout
	}
	if cfg.SetKeepAlive == nil {
		cfg.SetKeepAlive = netstack.SetKeepAlive
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cues == nil {
		cues = noopCues{}
	}
	return &Set{cfg: cfg, registry: reg, state: state, logger: logger, cues: cues}
}

// Callbacks registers the set with a network stack.
func (s *Set) Callbacks() netstack.Callbacks {
	return netstack.Callbacks{
		ConnectRequest: s.OnConnectRequest,
		DataReceived:   s.OnDataReceived,
		Disconnected:   s.OnDisconnected,
	}
}

// OnConnectRequest accepts the pending connection and registers it as the peer.
func (s *Set) OnConnectRequest(a netstack.Acceptor) error {
	conn, err := a.Accept()
	if err != nil {
		s.logger.Error("failed to accept incoming client connection", "error", err.Error())
		s.announceListening()
		return fmt.Errorf("%w: %v", ErrAcceptFailed, err)
	}

	addr := conn.RemoteAddr()
	if err := s.cfg.SetKeepAlive(conn, s.cfg.KeepAlive); err != nil {
		s.logger.Warn("keep-alive not configured; using stack default timeouts",
			"peer", addrString(addr),
			"error", err.Error(),
		)
	}

	if err := s.registry.Accept(addr, conn); err != nil {
		_ = conn.Close()
		s.logger.Warn("rejected connection; a client is already connected",
			"peer", addrString(addr),
			"error", err.Error(),
		)
		s.announceListening()
		return err
	}

	s.logger.Info("incoming TCP connection accepted", "peer", addrString(addr))
	s.logger.Info("press the button to send LED ON/OFF command to the TCP client")
	s.cues.PeerConnected(addrString(addr))
	return nil
}

// OnDataReceived reads one acknowledgement and updates the LED state.
func (s *Set) OnDataReceived(peer net.Conn) error {
	buf := make([]byte, s.cfg.MaxReceive)
	_ = peer.SetReadDeadline(time.Now().Add(s.cfg.ReceiveTimeout))
	n, err := peer.Read(buf)
	if err != nil && n == 0 {
		if netstack.IsPeerClosed(err) {
			_ = s.teardown(peer, fsm.EventPeerClosed)
			s.logger.Warn("client closed the connection while receiving acknowledgement", "error", err.Error())
			s.announceListening()
			return fmt.Errorf("%w: %v", netstack.ErrPeerClosed, err)
		}
		s.logger.Error("failed to receive acknowledgement from the TCP client", "error", err.Error())
		return err
	}

	text := string(buf[:n])
	ledOn := command.ParseAck(text)
	s.state.SetLEDOn(ledOn)
	s.logger.Info("acknowledgement from TCP client", "ack", text, "led_on", ledOn)
	s.logger.Info("press the button to send LED ON/OFF command to the TCP client")
	s.cues.AckReceived(ledOn)
	return nil
}

// OnDisconnected tears down peer and resets the LED state.
func (s *Set) OnDisconnected(peer net.Conn) error {
	err := s.teardown(peer, fsm.EventDisconnect)
	s.logger.Info("TCP client disconnected; please reconnect the TCP client")
	s.announceListening()
	if netstack.IsPeerClosed(err) {
		return nil
	}
	return err
}

// teardown closes peer and applies event to the registry. The LED state is
// reset unless another peer is registered. Every teardown emits the
// disconnect cue.
func (s *Set) teardown(peer net.Conn, event fsm.Event) error {
	err := peer.Close()
	if s.registry.ReleaseHandle(peer, event) || !s.registry.IsConnected() {
		s.state.SetLEDOn(false)
	}
	s.cues.PeerDisconnected()
	return err
}

func (s *Set) announceListening() {
	s.logger.Info("listening for incoming TCP client connection", "port", s.cfg.ListenPort)
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
