package peer

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rbright/ledlink/internal/netstack"
	"github.com/stretchr/testify/require"
)

type recordingLED struct {
	mu     sync.Mutex
	states []bool
}

func (l *recordingLED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, on)
	return nil
}

func (l *recordingLED) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.states...)
}

var testKeepAlive = netstack.KeepAlive{Idle: 10 * time.Second, Interval: time.Second, Count: 2}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func readAck(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, want, string(buf))
}

func TestRunAcknowledgesCommands(t *testing.T) {
	ln := listen(t)
	led := &recordingLED{}

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), Config{Address: ln.Addr().String(), KeepAlive: testKeepAlive}, led, nil)
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)

	_, err = conn.Write([]byte{'1'})
	require.NoError(t, err)
	readAck(t, conn, "LED ON ACK")

	_, err = conn.Write([]byte{'x'})
	require.NoError(t, err)
	_, err = conn.Write([]byte{'0'})
	require.NoError(t, err)
	readAck(t, conn, "LED OFF ACK")

	require.NoError(t, conn.Close())
	require.ErrorIs(t, <-done, ErrServerClosed)
	require.Equal(t, []bool{true, false}, led.snapshot())
}

func TestRunHandlesCoalescedCommands(t *testing.T) {
	ln := listen(t)
	led := &recordingLED{}

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), Config{Address: ln.Addr().String(), KeepAlive: testKeepAlive}, led, nil)
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("10"))
	require.NoError(t, err)
	readAck(t, conn, "LED ON ACKLED OFF ACK")
	require.Equal(t, []bool{true, false}, led.snapshot())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Address: ln.Addr().String(), KeepAlive: testKeepAlive}, nil, nil)
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunDialFailure(t *testing.T) {
	ln := listen(t)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err := Run(context.Background(), Config{Address: addr, DialTimeout: 200 * time.Millisecond}, nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dial server")
}

func TestRunRequiresAddress(t *testing.T) {
	require.Error(t, Run(context.Background(), Config{}, nil, nil))
}

func TestOpenLEDRequiresPin(t *testing.T) {
	_, err := OpenLED(" ")
	require.Error(t, err)
}
