// Package dispatch runs the worker that turns pending commands into sends to the peer.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/ledlink/internal/button"
	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/fsm"
	"github.com/rbright/ledlink/internal/netstack"
	"github.com/rbright/ledlink/internal/notify"
	"github.com/rbright/ledlink/internal/registry"
)

// ErrTransientSend marks a send failure that leaves the peer registered.
var ErrTransientSend = errors.New("send command to client")

// DefaultDebounce is the settle time before the input is re-sampled.
const DefaultDebounce = 50 * time.Millisecond

// Outcome is the result of one worker iteration.
type Outcome int

const (
	OutcomeSent Outcome = iota + 1
	OutcomeBounced
	OutcomeNotConnected
	OutcomePeerClosed
	OutcomeSendFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeBounced:
		return "bounced"
	case OutcomeNotConnected:
		return "not_connected"
	case OutcomePeerClosed:
		return "peer_closed"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Cues receives best-effort notifications about sends.
type Cues interface {
	CommandSent(command.Command)
}

type noopCues struct{}

func (noopCues) CommandSent(command.Command) {}

// Worker is the single consumer of the notification slot.
type Worker struct {
	slot     *notify.Slot
	source   button.Source
	registry *registry.Registry
	state    *command.State
	debounce time.Duration
	logger   *slog.Logger
	cues     Cues

	// observe, when set, receives every iteration outcome.
	observe func(command.Command, Outcome)
}

// Option customizes a Worker.
type Option func(*Worker)

func WithDebounce(d time.Duration) Option {
	return func(w *Worker) { w.debounce = d }
}

func WithCues(c Cues) Option {
	return func(w *Worker) {
		if c != nil {
			w.cues = c
		}
	}
}

func WithObserver(fn func(command.Command, Outcome)) Option {
	return func(w *Worker) { w.observe = fn }
}

func New(
	slot *notify.Slot,
	source button.Source,
	reg *registry.Registry,
	state *command.State,
	logger *slog.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Worker{
		slot:     slot,
		source:   source,
		registry: reg,
		state:    state,
		debounce: DefaultDebounce,
		logger:   logger,
		cues:     noopCues{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run waits on the slot and dispatches one command per notification until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		cmd, err := w.slot.Wait(ctx)
		if err != nil {
			return nil
		}
		outcome := w.iterate(ctx, cmd)
		if w.observe != nil {
			w.observe(cmd, outcome)
		}
		if outcome == OutcomeCancelled {
			return nil
		}
	}
}

// iterate runs one debounce-and-send pass. The interrupt source is masked for
// the whole pass and re-armed on every return path.
func (w *Worker) iterate(ctx context.Context, cmd command.Command) Outcome {
	w.source.Disable()
	defer w.source.Enable()

	if w.debounce > 0 {
		timer := time.NewTimer(w.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return OutcomeCancelled
		case <-timer.C:
		}
	}

	if !w.source.Pressed() {
		w.logger.Debug("button released within debounce window", "command", cmd.String())
		return OutcomeBounced
	}

	handle, ok := w.registry.CurrentHandle()
	if !ok {
		w.logger.Info("button pressed with no TCP client connected", "command", cmd.String())
		return OutcomeNotConnected
	}

	if _, err := handle.Write([]byte{byte(cmd)}); err != nil {
		if netstack.IsPeerClosed(err) {
			_ = handle.Close()
			if w.registry.ReleaseHandle(handle, fsm.EventPeerClosed) {
				w.state.SetLEDOn(false)
			}
			w.logger.Warn("client closed the connection; send dropped",
				"command", cmd.String(),
				"error", fmt.Errorf("%w: %v", netstack.ErrPeerClosed, err).Error(),
			)
			return OutcomePeerClosed
		}
		w.logger.Error("failed to send command to client",
			"command", cmd.String(),
			"error", fmt.Errorf("%w: %v", ErrTransientSend, err).Error(),
		)
		return OutcomeSendFailed
	}

	if !w.registry.MarkSent(handle) {
		w.logger.Debug("peer released while the command was in flight", "command", cmd.String())
	}
	w.logger.Info(cmd.String()+" command sent to TCP client", "command", string(rune(cmd)))
	w.cues.CommandSent(cmd)
	return OutcomeSent
}
