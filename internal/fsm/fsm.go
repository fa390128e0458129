package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateConnected State = "connected"
)

const (
	EventAccept     Event = "accept"
	EventSent       Event = "sent"
	EventPeerClosed Event = "peer_closed"
	EventDisconnect Event = "disconnect"
)

// Transition applies one connection lifecycle event.
//
// Release events are idempotent: peer_closed and disconnect from idle stay idle.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventAccept:
			return StateConnected, nil
		case EventPeerClosed, EventDisconnect:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnected:
		switch event {
		case EventSent:
			return StateConnected, nil
		case EventPeerClosed, EventDisconnect:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
