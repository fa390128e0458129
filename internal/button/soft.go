package button

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultHold is how long a software press outlasts the debounce window.
const DefaultHold = 150 * time.Millisecond

// Soft is a software button driven by Press, used by the control socket and tests.
type Soft struct {
	gate
	now       func() time.Time
	releaseAt atomic.Int64
}

func NewSoft() *Soft {
	return &Soft{now: time.Now}
}

// Run binds onEdge and blocks until ctx is done.
func (s *Soft) Run(ctx context.Context, onEdge func()) error {
	s.bind(onEdge)
	<-ctx.Done()
	s.bind(nil)
	return nil
}

// Press holds the button down for hold and raises an edge. It reports whether
// the edge was delivered; a masked or unbound source drops it.
func (s *Soft) Press(hold time.Duration) bool {
	if hold < 0 {
		hold = 0
	}
	s.releaseAt.Store(s.now().Add(hold).UnixNano())
	return s.fire()
}

func (s *Soft) Pressed() bool {
	return s.now().UnixNano() < s.releaseAt.Load()
}
