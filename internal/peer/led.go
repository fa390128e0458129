package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// LED is the output driven by received commands.
type LED interface {
	Set(on bool) error
}

// PinLED drives a host GPIO output line, high for on.
type PinLED struct {
	pin gpio.PinOut
}

// OpenLED resolves name and drives it low.
func OpenLED(name string) (*PinLED, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("led pin must not be empty")
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init gpio host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("invalid pin: %s", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure pin %s: %w", name, err)
	}
	return &PinLED{pin: pin}, nil
}

func (l *PinLED) Set(on bool) error {
	return l.pin.Out(gpio.Level(on))
}

// LogLED records state changes in the log only.
type LogLED struct {
	Logger *slog.Logger
}

func (l LogLED) Set(on bool) error {
	if l.Logger != nil {
		l.Logger.Debug("led output", "on", on)
	}
	return nil
}
