// Package command defines the one-byte wire commands and the acknowledgement-driven LED state.
package command

import "sync/atomic"

// Command is one wire byte sent to the peer.
type Command byte

const (
	On  Command = '1'
	Off Command = '0'
)

const (
	// AckOn is the only acknowledgement text that marks the LED as on.
	AckOn  = "LED ON ACK"
	AckOff = "LED OFF ACK"
)

func (c Command) String() string {
	switch c {
	case On:
		return "LED ON"
	case Off:
		return "LED OFF"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the two wire commands.
func (c Command) Valid() bool {
	return c == On || c == Off
}

// Next returns the toggle of the current LED state.
func Next(ledOn bool) Command {
	if ledOn {
		return Off
	}
	return On
}

// ParseAck reports whether text acknowledges the ON command.
//
// Matching is exact and case-sensitive. Anything else, including empty or
// truncated text, reads as the OFF acknowledgement.
func ParseAck(text string) bool {
	return text == AckOn
}

// AckFor returns the acknowledgement a peer replies with after applying c.
func AckFor(c Command) string {
	if c == On {
		return AckOn
	}
	return AckOff
}

// State holds the LED flag written by the receive path and read by the interrupt path.
type State struct {
	ledOn atomic.Bool
}

func (s *State) LEDOn() bool {
	return s.ledOn.Load()
}

func (s *State) SetLEDOn(on bool) {
	s.ledOn.Store(on)
}

// Next computes the command the next button press should send.
func (s *State) Next() Command {
	return Next(s.ledOn.Load())
}
