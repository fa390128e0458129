// Package doctor runs readiness diagnostics for config, button, sockets, and peripherals.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/jfreymuth/pulse"
	"github.com/rbright/ledlink/internal/config"
	"github.com/rbright/ledlink/internal/health"
	"github.com/rbright/ledlink/internal/ipc"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const probeTimeout = 300 * time.Millisecond

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", loaded.Path),
	}}
	if !loaded.Exists {
		checks[0].Message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory available", "XDG_RUNTIME_DIR is empty; press and status are unavailable"))

	checks = append(checks, checkButton(cfg.Button))
	if pin := strings.TrimSpace(cfg.Peer.LEDPin); pin != "" {
		checks = append(checks, checkPin("peer.led_pin", pin))
	}

	running := serverRunning(ctx)
	checks = append(checks, checkListen("server.port", net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port)), running))
	if cfg.Health.Enable {
		checks = append(checks, checkHealth(ctx, cfg.Health.Address, running))
	}
	if cfg.Indicator.Enable {
		checks = append(checks, checkNotifications())
	}
	if cfg.Indicator.SoundEnable {
		checks = append(checks, checkPulse(cfg.Indicator.DesktopAppName))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	if predicate(os.Getenv(name)) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

func checkButton(cfg config.ButtonConfig) Check {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), config.BackendGPIO) {
		check := checkPin("button.pin", cfg.Pin)
		if check.Pass {
			check.Message += fmt.Sprintf(" (active_low=%t, debounce=%s)", cfg.ActiveLow, cfg.Debounce())
		}
		return check
	}
	return Check{Name: "button", Pass: true, Message: "software button; use `ledlink press`"}
}

// checkPin resolves a GPIO line without configuring it.
func checkPin(name string, pin string) Check {
	if _, err := host.Init(); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("init gpio host: %v", err)}
	}
	p := gpioreg.ByName(strings.TrimSpace(pin))
	if p == nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("invalid pin: %s", pin)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("resolved %s", p.Name())}
}

func serverRunning(ctx context.Context) bool {
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return false
	}
	alive, _ := ipc.Probe(ctx, path, probeTimeout)
	return alive
}

// checkListen expects address to be bindable unless a server already owns it.
func checkListen(name string, address string, running bool) Check {
	if running {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s in use by running ledlink server", address)}
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot bind %s: %v", address, err)}
	}
	_ = ln.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is free", address)}
}

func checkHealth(ctx context.Context, address string, running bool) Check {
	if !running {
		return checkListen("health", address, false)
	}
	status, err := health.Probe(ctx, address, health.PeerService, time.Second)
	if err != nil {
		return Check{Name: "health", Pass: false, Message: err.Error()}
	}
	return Check{Name: "health", Pass: true, Message: fmt.Sprintf("%s reports peer %s", address, status)}
}

func checkNotifications() Check {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return Check{Name: "indicator.desktop", Pass: false, Message: fmt.Sprintf("connect to session bus: %v", err)}
	}
	defer conn.Close()

	var owned bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, "org.freedesktop.Notifications").Store(&owned); err != nil {
		return Check{Name: "indicator.desktop", Pass: false, Message: fmt.Sprintf("query notification daemon: %v", err)}
	}
	if !owned {
		return Check{Name: "indicator.desktop", Pass: false, Message: "no notification daemon on the session bus"}
	}
	return Check{Name: "indicator.desktop", Pass: true, Message: "notification daemon available"}
}

func checkPulse(appName string) Check {
	client, err := pulse.NewClient(pulse.ClientApplicationName(appName))
	if err != nil {
		return Check{Name: "indicator.sound", Pass: false, Message: fmt.Sprintf("connect pulse server: %v", err)}
	}
	defer client.Close()

	sink, err := client.DefaultSink()
	if err != nil {
		return Check{Name: "indicator.sound", Pass: false, Message: fmt.Sprintf("resolve default sink: %v", err)}
	}
	return Check{Name: "indicator.sound", Pass: true, Message: fmt.Sprintf("default sink %q", sink.ID())}
}
