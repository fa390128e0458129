// Package peer is the reference TCP client: it obeys LED commands from the
// server and acknowledges each one.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/logging"
	"github.com/rbright/ledlink/internal/netstack"
)

// ErrServerClosed means the server ended the connection.
var ErrServerClosed = errors.New("server closed the connection")

const (
	readBufferSize     = 1024
	defaultDialTimeout = 5 * time.Second
)

type Config struct {
	Address     string
	KeepAlive   netstack.KeepAlive
	DialTimeout time.Duration
}

// Run connects to the server and serves commands until ctx is done or the
// connection ends. Bytes other than the two commands are ignored.
func Run(ctx context.Context, cfg Config, led LED, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	if led == nil {
		led = LogLED{Logger: logger}
	}
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return errors.New("peer address is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial server %q: %w", address, err)
	}
	defer conn.Close()

	if err := netstack.SetKeepAlive(conn, cfg.KeepAlive); err != nil {
		logger.Warn("keep-alive not configured", "error", err.Error())
	}
	logger.Info("connected to TCP server", "server", conn.RemoteAddr().String())

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			if ackErr := handleCommand(conn, command.Command(b), led, logger); ackErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return ackErr
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if netstack.IsPeerClosed(err) {
				return ErrServerClosed
			}
			return fmt.Errorf("read command: %w", err)
		}
	}
}

func handleCommand(conn net.Conn, cmd command.Command, led LED, logger *slog.Logger) error {
	if !cmd.Valid() {
		logger.Debug("ignoring unknown byte from server", "byte", int(cmd))
		return nil
	}
	logger.Info("command from server", "command", cmd.String())

	if err := led.Set(cmd == command.On); err != nil {
		logger.Warn("failed to drive led", "error", err.Error())
	}
	if _, err := conn.Write([]byte(command.AckFor(cmd))); err != nil {
		return fmt.Errorf("send acknowledgement: %w", err)
	}
	logger.Info("acknowledgement sent to server", "ack", command.AckFor(cmd))
	return nil
}
