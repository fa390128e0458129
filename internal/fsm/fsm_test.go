package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventAccept)
	require.NoError(t, err)
	require.Equal(t, StateConnected, next)

	next, err = Transition(next, EventSent)
	require.NoError(t, err)
	require.Equal(t, StateConnected, next)

	next, err = Transition(next, EventDisconnect)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionReleaseIsIdempotent(t *testing.T) {
	for _, event := range []Event{EventPeerClosed, EventDisconnect} {
		for _, state := range []State{StateIdle, StateConnected} {
			next, err := Transition(state, event)
			require.NoError(t, err)
			require.Equal(t, StateIdle, next)
		}
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle sent invalid", state: StateIdle, event: EventSent, want: StateIdle, wantErr: true},
		{name: "connected accept invalid", state: StateConnected, event: EventAccept, want: StateConnected, wantErr: true},
		{name: "connected peer closed valid", state: StateConnected, event: EventPeerClosed, want: StateIdle, wantErr: false},
		{name: "idle accept valid", state: StateIdle, event: EventAccept, want: StateConnected, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventAccept)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}
