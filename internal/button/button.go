// Package button provides press sources and the interrupt handler that turns a
// press edge into a pending command.
package button

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/notify"
)

// Source is a button with an edge interrupt that can be masked.
type Source interface {
	// Run delivers press edges to onEdge while enabled, until ctx is done.
	Run(ctx context.Context, onEdge func()) error
	// Pressed samples the current input level.
	Pressed() bool
	Enable()
	Disable()
}

// Interrupt is the edge handler. It computes the next command from the LED
// state, posts it without blocking, and yields so the worker runs promptly.
type Interrupt struct {
	state   *command.State
	slot    *notify.Slot
	yield   func()
	dropped atomic.Uint64
}

func NewInterrupt(state *command.State, slot *notify.Slot) *Interrupt {
	return &Interrupt{state: state, slot: slot, yield: runtime.Gosched}
}

// OnEdge must stay free of blocking calls and logging.
func (i *Interrupt) OnEdge() {
	if !i.slot.Post(i.state.Next()) {
		i.dropped.Add(1)
	}
	i.yield()
}

// Dropped counts edges discarded because a command was already pending.
func (i *Interrupt) Dropped() uint64 {
	return i.dropped.Load()
}

// gate masks edge delivery; sources start enabled.
type gate struct {
	disabled atomic.Bool
	onEdge   atomic.Pointer[func()]
}

func (g *gate) Enable()  { g.disabled.Store(false) }
func (g *gate) Disable() { g.disabled.Store(true) }

func (g *gate) bind(onEdge func()) {
	g.onEdge.Store(&onEdge)
}

func (g *gate) fire() bool {
	if g.disabled.Load() {
		return false
	}
	fn := g.onEdge.Load()
	if fn == nil || *fn == nil {
		return false
	}
	(*fn)()
	return true
}
