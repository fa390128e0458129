// Package notify hands command values from the interrupt path to the dispatch worker.
package notify

import (
	"context"

	"github.com/rbright/ledlink/internal/command"
)

// Slot is a single-value signal with set-without-overwrite semantics.
//
// A value posted while an earlier one is still unread is dropped; the earlier
// value is the one the worker receives.
type Slot struct {
	ch chan command.Command
}

func NewSlot() *Slot {
	return &Slot{ch: make(chan command.Command, 1)}
}

// Post stores c unless a value is already pending. It never blocks and
// reports whether c was stored.
func (s *Slot) Post(c command.Command) bool {
	select {
	case s.ch <- c:
		return true
	default:
		return false
	}
}

// Wait blocks until a value is posted or ctx is done.
func (s *Slot) Wait(ctx context.Context) (command.Command, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case c := <-s.ch:
		return c, nil
	}
}

// Pending reports whether an unread value is stored.
func (s *Slot) Pending() bool {
	return len(s.ch) > 0
}
