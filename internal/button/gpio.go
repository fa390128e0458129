package button

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const edgePollTimeout = 100 * time.Millisecond

// GPIO is a physical button on a host GPIO line.
type GPIO struct {
	gate
	pin       gpio.PinIO
	activeLow bool
}

// OpenGPIO initializes the host drivers and configures name as an edge input.
// An active-low button uses the pull-up and the falling edge.
func OpenGPIO(name string, activeLow bool) (*GPIO, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("button pin must not be empty")
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init gpio host: %w", err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("invalid pin: %s", name)
	}

	pull, edge := gpio.PullDown, gpio.RisingEdge
	if activeLow {
		pull, edge = gpio.PullUp, gpio.FallingEdge
	}
	if err := pin.In(pull, edge); err != nil {
		return nil, fmt.Errorf("configure pin %s: %w", name, err)
	}
	return &GPIO{pin: pin, activeLow: activeLow}, nil
}

// Run waits for edges and forwards them while the source is enabled.
func (g *GPIO) Run(ctx context.Context, onEdge func()) error {
	g.bind(onEdge)
	defer g.bind(nil)
	defer func() { _ = g.pin.Halt() }()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if g.pin.WaitForEdge(edgePollTimeout) {
			g.fire()
		}
	}
}

func (g *GPIO) Pressed() bool {
	level := g.pin.Read()
	if g.activeLow {
		return level == gpio.Low
	}
	return level == gpio.High
}

// Name returns the resolved pin name.
func (g *GPIO) Name() string {
	return g.pin.Name()
}
