// Package config resolves, parses, validates, and defaults ledlink configuration.
package config

import "time"

// Config is the fully materialized runtime configuration.
type Config struct {
	Server    ServerConfig
	KeepAlive KeepAliveConfig
	Button    ButtonConfig
	Peer      PeerConfig
	Indicator IndicatorConfig
	Health    HealthConfig
	Log       LogConfig
}

// ServerConfig controls the listening endpoint and the receive path.
type ServerConfig struct {
	Address       string
	Port          int
	Backlog       int
	RecvTimeoutMS int
	MaxRecvBytes  int
}

// RecvTimeout returns the receive deadline as a duration.
func (s ServerConfig) RecvTimeout() time.Duration {
	return time.Duration(s.RecvTimeoutMS) * time.Millisecond
}

// KeepAliveConfig holds the TCP keep-alive probe settings applied to each peer.
type KeepAliveConfig struct {
	IdleMS     int
	IntervalMS int
	Count      int
}

func (k KeepAliveConfig) Idle() time.Duration {
	return time.Duration(k.IdleMS) * time.Millisecond
}

func (k KeepAliveConfig) Interval() time.Duration {
	return time.Duration(k.IntervalMS) * time.Millisecond
}

// ButtonConfig selects the press source.
type ButtonConfig struct {
	Backend    string
	Pin        string
	ActiveLow  bool
	DebounceMS int
}

func (b ButtonConfig) Debounce() time.Duration {
	return time.Duration(b.DebounceMS) * time.Millisecond
}

// PeerConfig is used by the reference client.
type PeerConfig struct {
	Address string
	LEDPin  string
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	SoundEnable    bool
	DesktopAppName string
}

// HealthConfig controls the gRPC health endpoint.
type HealthConfig struct {
	Enable  bool
	Address string
}

type LogConfig struct {
	Level   string
	Console bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
