package config

const (
	BackendSoft = "soft"
	BackendGPIO = "gpio"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:       "",
			Port:          50007,
			Backlog:       3,
			RecvTimeoutMS: 500,
			MaxRecvBytes:  20,
		},
		KeepAlive: KeepAliveConfig{
			IdleMS:     10000,
			IntervalMS: 1000,
			Count:      2,
		},
		Button: ButtonConfig{
			Backend:    BackendSoft,
			Pin:        "GPIO17",
			ActiveLow:  true,
			DebounceMS: 50,
		},
		Peer: PeerConfig{Address: "127.0.0.1:50007"},
		Indicator: IndicatorConfig{
			DesktopAppName: "ledlink",
		},
		Health: HealthConfig{Enable: true, Address: "127.0.0.1:50008"},
		Log:    LogConfig{Level: "info", Console: true},
	}
}
