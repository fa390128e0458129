package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// ackLen is the length of the longest acknowledgement a peer sends.
const ackLen = len("LED OFF ACK")

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server.port must be in 1..65535")
	}
	if cfg.Server.Backlog <= 0 {
		return nil, fmt.Errorf("server.backlog must be > 0")
	}
	if cfg.Server.RecvTimeoutMS <= 0 {
		return nil, fmt.Errorf("server.recv_timeout_ms must be > 0")
	}
	if cfg.Server.MaxRecvBytes <= 0 {
		return nil, fmt.Errorf("server.max_recv_bytes must be > 0")
	}
	if cfg.Server.MaxRecvBytes < ackLen {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"server.max_recv_bytes=%d is shorter than an acknowledgement; LED state will never turn on",
			cfg.Server.MaxRecvBytes,
		)})
	}

	if cfg.KeepAlive.IdleMS <= 0 || cfg.KeepAlive.IntervalMS <= 0 || cfg.KeepAlive.Count <= 0 {
		return nil, fmt.Errorf("keepalive.idle_ms, keepalive.interval_ms and keepalive.count must be > 0")
	}
	if cfg.KeepAlive.IdleMS%1000 != 0 || cfg.KeepAlive.IntervalMS%1000 != 0 {
		warnings = append(warnings, Warning{Message: "keepalive durations are applied in whole seconds and rounded up"})
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Button.Backend)) {
	case BackendSoft:
	case BackendGPIO:
		if strings.TrimSpace(cfg.Button.Pin) == "" {
			return nil, fmt.Errorf("button.pin must not be empty when button.backend=gpio")
		}
	case "":
		return nil, fmt.Errorf("button.backend must not be empty")
	default:
		return nil, fmt.Errorf("button.backend must be one of: soft, gpio")
	}
	if cfg.Button.DebounceMS < 0 {
		return nil, fmt.Errorf("button.debounce_ms must be >= 0")
	}
	if cfg.Button.DebounceMS == 0 {
		warnings = append(warnings, Warning{Message: "button.debounce_ms=0 disables debouncing"})
	}

	if strings.TrimSpace(cfg.Peer.Address) == "" {
		return nil, fmt.Errorf("peer.address must not be empty")
	}
	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Health.Enable && strings.TrimSpace(cfg.Health.Address) == "" {
		return nil, fmt.Errorf("health.address must not be empty when health.enable=true")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	return warnings, nil
}

// ParseLevel maps log.level to a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
}
