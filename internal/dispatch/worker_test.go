package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rbright/ledlink/internal/button"
	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/fsm"
	"github.com/rbright/ledlink/internal/notify"
	"github.com/rbright/ledlink/internal/registry"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pressed  atomic.Bool
	disables atomic.Int32
	enables  atomic.Int32
	masked   atomic.Bool
}

func (s *fakeSource) Run(ctx context.Context, _ func()) error {
	<-ctx.Done()
	return nil
}
func (s *fakeSource) Pressed() bool { return s.pressed.Load() }
func (s *fakeSource) Enable()       { s.enables.Add(1); s.masked.Store(false) }
func (s *fakeSource) Disable()      { s.disables.Add(1); s.masked.Store(true) }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "10.0.0.2:4000" }

type fakeConn struct {
	mu       sync.Mutex
	written  []byte
	writeErr error
	closed   atomic.Int32
}

func (c *fakeConn) Read([]byte) (int, error) { return 0, nil }
func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, p...)
	return len(p), nil
}
func (c *fakeConn) Close() error                     { c.closed.Add(1); return nil }
func (c *fakeConn) LocalAddr() net.Addr              { return fakeAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return fakeAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written...)
}

type fixture struct {
	slot   *notify.Slot
	source *fakeSource
	reg    *registry.Registry
	state  *command.State
	worker *Worker
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	f := fixture{
		slot:   notify.NewSlot(),
		source: &fakeSource{},
		reg:    registry.New(nil),
		state:  &command.State{},
	}
	opts = append([]Option{WithDebounce(time.Millisecond)}, opts...)
	f.worker = New(f.slot, f.source, f.reg, f.state, nil, opts...)
	return f
}

func TestIterateSendsCommandWhenConnected(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{}
	require.NoError(t, f.reg.Accept(conn.RemoteAddr(), conn))
	f.source.pressed.Store(true)

	outcome := f.worker.iterate(context.Background(), command.On)
	require.Equal(t, OutcomeSent, outcome)
	require.Equal(t, []byte{'1'}, conn.bytes())
	require.Equal(t, uint64(1), f.reg.Snapshot().Sent)
	require.Equal(t, fsm.StateConnected, f.reg.Snapshot().State)
	require.Equal(t, int32(1), f.source.disables.Load())
	require.Equal(t, int32(1), f.source.enables.Load())
	require.False(t, f.source.masked.Load())
}

func TestIterateNotConnectedReArms(t *testing.T) {
	f := newFixture(t)
	f.source.pressed.Store(true)

	outcome := f.worker.iterate(context.Background(), command.On)
	require.Equal(t, OutcomeNotConnected, outcome)
	require.Equal(t, int32(1), f.source.enables.Load())
	require.False(t, f.source.masked.Load())
}

func TestIterateBounceDoesNotSend(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{}
	require.NoError(t, f.reg.Accept(conn.RemoteAddr(), conn))
	f.source.pressed.Store(false)

	outcome := f.worker.iterate(context.Background(), command.On)
	require.Equal(t, OutcomeBounced, outcome)
	require.Empty(t, conn.bytes())
	require.False(t, f.source.masked.Load())
}

func TestIteratePeerClosedReleasesOnce(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{writeErr: fmt.Errorf("write: %w", syscall.EPIPE)}
	require.NoError(t, f.reg.Accept(conn.RemoteAddr(), conn))
	f.state.SetLEDOn(true)
	f.source.pressed.Store(true)

	outcome := f.worker.iterate(context.Background(), command.Off)
	require.Equal(t, OutcomePeerClosed, outcome)
	require.False(t, f.reg.IsConnected())
	require.False(t, f.state.LEDOn())
	require.Equal(t, int32(1), conn.closed.Load())
	require.False(t, f.reg.Release(), "registry must already be clear")
	require.False(t, f.source.masked.Load())
}

func TestIteratePeerClosedRacingDisconnectClearsOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t, WithDebounce(0))
		conn := &fakeConn{writeErr: net.ErrClosed}
		require.NoError(t, f.reg.Accept(conn.RemoteAddr(), conn))
		f.source.pressed.Store(true)

		var cleared atomic.Int32
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.reg.ReleaseHandle(conn, fsm.EventDisconnect) {
				cleared.Add(1)
			}
		}()
		outcome := f.worker.iterate(context.Background(), command.On)
		wg.Wait()

		require.Contains(t, []Outcome{OutcomePeerClosed, OutcomeNotConnected}, outcome)
		require.LessOrEqual(t, cleared.Load(), int32(1))
		require.False(t, f.reg.IsConnected())
		require.False(t, f.reg.Release())
	}
}

func TestIterateTransientFailureKeepsPeer(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{writeErr: errors.New("no buffer space")}
	require.NoError(t, f.reg.Accept(conn.RemoteAddr(), conn))
	f.source.pressed.Store(true)

	outcome := f.worker.iterate(context.Background(), command.On)
	require.Equal(t, OutcomeSendFailed, outcome)
	require.True(t, f.reg.IsConnected())
	require.Zero(t, conn.closed.Load())
	require.False(t, f.source.masked.Load())
}

func TestIterateCancelledDuringDebounceReArms(t *testing.T) {
	f := newFixture(t, WithDebounce(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := f.worker.iterate(ctx, command.On)
	require.Equal(t, OutcomeCancelled, outcome)
	require.False(t, f.source.masked.Load())
}

func TestRunDispatchesPostedCommands(t *testing.T) {
	outcomes := make(chan Outcome, 4)
	f := newFixture(t, WithObserver(func(_ command.Command, o Outcome) { outcomes <- o }))
	conn := &fakeConn{}
	require.NoError(t, f.reg.Accept(conn.RemoteAddr(), conn))
	f.source.pressed.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.True(t, f.slot.Post(command.On))
	require.Equal(t, OutcomeSent, <-outcomes)
	require.True(t, f.slot.Post(command.Off))
	require.Equal(t, OutcomeSent, <-outcomes)
	require.Equal(t, []byte{'1', '0'}, conn.bytes())

	cancel()
	require.NoError(t, <-done)
}

func TestRunWithSoftButtonBounceAndHold(t *testing.T) {
	slot := notify.NewSlot()
	soft := button.NewSoft()
	reg := registry.New(nil)
	state := &command.State{}
	isr := button.NewInterrupt(state, slot)
	outcomes := make(chan Outcome, 4)
	w := New(slot, soft, reg, state, nil,
		WithDebounce(20*time.Millisecond),
		WithObserver(func(_ command.Command, o Outcome) { outcomes <- o }),
	)
	conn := &fakeConn{}
	require.NoError(t, reg.Accept(conn.RemoteAddr(), conn))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = soft.Run(ctx, isr.OnEdge) }()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return soft.Press(0) }, time.Second, 5*time.Millisecond)
	require.Equal(t, OutcomeBounced, <-outcomes)
	require.Empty(t, conn.bytes())

	require.Eventually(t, func() bool { return soft.Press(200 * time.Millisecond) }, time.Second, 5*time.Millisecond)
	require.Equal(t, OutcomeSent, <-outcomes)
	require.Equal(t, []byte{'1'}, conn.bytes())
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "sent", OutcomeSent.String())
	require.Equal(t, "peer_closed", OutcomePeerClosed.String())
	require.Equal(t, "unknown", Outcome(99).String())
}
