package button

import (
	"context"
	"testing"
	"time"

	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/notify"
	"github.com/stretchr/testify/require"
)

func TestInterruptPostsToggleOfLEDState(t *testing.T) {
	state := &command.State{}
	slot := notify.NewSlot()
	isr := NewInterrupt(state, slot)
	yields := 0
	isr.yield = func() { yields++ }

	isr.OnEdge()
	got, err := slot.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, command.On, got)

	state.SetLEDOn(true)
	isr.OnEdge()
	got, err = slot.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, command.Off, got)
	require.Equal(t, 2, yields)
}

func TestInterruptDropsWhilePending(t *testing.T) {
	state := &command.State{}
	slot := notify.NewSlot()
	isr := NewInterrupt(state, slot)
	isr.yield = func() {}

	isr.OnEdge()
	state.SetLEDOn(true)
	isr.OnEdge()
	isr.OnEdge()
	require.Equal(t, uint64(2), isr.Dropped())

	got, err := slot.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, command.On, got)
}

func TestSoftPressDeliversEdgeOnlyWhenEnabledAndBound(t *testing.T) {
	soft := NewSoft()
	require.False(t, soft.Press(time.Second), "unbound source must drop edges")

	edges := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- soft.Run(ctx, func() { edges <- struct{}{} })
	}()
	require.Eventually(t, func() bool { return soft.Press(time.Second) }, time.Second, 5*time.Millisecond)
	<-edges

	soft.Disable()
	require.False(t, soft.Press(time.Second))
	soft.Enable()
	require.True(t, soft.Press(time.Second))
	<-edges

	cancel()
	require.NoError(t, <-done)
	require.False(t, soft.Press(time.Second))
}

func TestSoftPressedFollowsHoldWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	soft := NewSoft()
	soft.now = func() time.Time { return now }

	require.False(t, soft.Pressed())
	soft.Press(100 * time.Millisecond)
	require.True(t, soft.Pressed())

	now = now.Add(99 * time.Millisecond)
	require.True(t, soft.Pressed())

	now = now.Add(time.Millisecond)
	require.False(t, soft.Pressed())

	soft.Press(-time.Second)
	require.False(t, soft.Pressed())
}

func TestOpenGPIORejectsEmptyPin(t *testing.T) {
	_, err := OpenGPIO("  ", true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}
