// Package registry tracks the single accepted peer connection.
package registry

import (
	"errors"
	"net"
	"sync"

	"github.com/rbright/ledlink/internal/fsm"
)

// ErrAlreadyConnected rejects a second peer while one is registered.
var ErrAlreadyConnected = errors.New("a peer is already connected")

// Snapshot is a consistent read of the registry.
type Snapshot struct {
	State     fsm.State
	Connected bool
	PeerAddr  string
	// Sent counts commands delivered to the current peer.
	Sent uint64
}

// Observer receives a snapshot after every state change. It runs with the
// registry lock held and must not call back into the registry.
type Observer func(Snapshot)

// Registry guards the peer handle, its address, and the connected flag as one unit.
// A handle is present iff the state is connected.
type Registry struct {
	mu       sync.RWMutex
	state    fsm.State
	handle   net.Conn
	addr     net.Addr
	sent     uint64
	observer Observer
}

func New(observer Observer) *Registry {
	return &Registry{state: fsm.StateIdle, observer: observer}
}

// Accept registers handle as the current peer.
func (r *Registry) Accept(addr net.Addr, handle net.Conn) error {
	if handle == nil {
		return errors.New("accept nil peer handle")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := fsm.Transition(r.state, fsm.EventAccept)
	if err != nil {
		return ErrAlreadyConnected
	}
	r.state = next
	r.handle = handle
	r.addr = addr
	r.sent = 0
	r.notifyLocked()
	return nil
}

// Release clears the registry regardless of the current peer. It reports
// whether this call removed a peer, so concurrent releases clear it exactly once.
func (r *Registry) Release() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(fsm.EventDisconnect)
}

// ReleaseHandle applies event (peer_closed or disconnect) only when handle
// is still the registered peer. It reports whether this call cleared it.
func (r *Registry) ReleaseHandle(handle net.Conn, event fsm.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil || r.handle != handle {
		return false
	}
	return r.releaseLocked(event)
}

// MarkSent records a delivered command on handle. It reports false when
// handle is no longer the registered peer.
func (r *Registry) MarkSent(handle net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil || r.handle != handle {
		return false
	}
	next, err := fsm.Transition(r.state, fsm.EventSent)
	if err != nil {
		return false
	}
	r.state = next
	r.sent++
	r.notifyLocked()
	return true
}

func (r *Registry) releaseLocked(event fsm.Event) bool {
	had := r.handle != nil
	next, _ := fsm.Transition(r.state, event)
	r.state = next
	r.handle = nil
	r.addr = nil
	r.sent = 0
	if had {
		r.notifyLocked()
	}
	return had
}

func (r *Registry) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == fsm.StateConnected
}

// CurrentHandle returns the registered peer, if any.
func (r *Registry) CurrentHandle() (net.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.handle == nil {
		return nil, false
	}
	return r.handle, true
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	s := Snapshot{State: r.state, Connected: r.state == fsm.StateConnected, Sent: r.sent}
	if r.addr != nil {
		s.PeerAddr = r.addr.String()
	}
	return s
}

func (r *Registry) notifyLocked() {
	if r.observer != nil {
		r.observer(r.snapshotLocked())
	}
}
