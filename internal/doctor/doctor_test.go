package doctor

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/rbright/ledlink/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv("TEST_DOCTOR_ENV", func(v string) bool { return v != "" }, "looks good", "unexpected")
	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckButtonSoft(t *testing.T) {
	check := checkButton(config.ButtonConfig{Backend: config.BackendSoft})
	require.True(t, check.Pass)
	require.Equal(t, "button", check.Name)
}

func TestCheckButtonUnknownPin(t *testing.T) {
	check := checkButton(config.ButtonConfig{Backend: config.BackendGPIO, Pin: "NOT_A_PIN_42"})
	require.False(t, check.Pass)
	require.Equal(t, "button.pin", check.Name)
}

func TestCheckListenFreeAndTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	taken := ln.Addr().String()

	check := checkListen("server.port", taken, false)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "cannot bind")

	check = checkListen("server.port", taken, true)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "running ledlink server")

	require.NoError(t, ln.Close())
	check = checkListen("server.port", taken, false)
	require.True(t, check.Pass)
}

func TestRunReportsCoreChecks(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := probe.Addr().(*net.TCPAddr).Port
	require.NoError(t, probe.Close())

	cfg := config.Default()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = port
	cfg.Health.Address = "127.0.0.1:0"

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "XDG_RUNTIME_DIR", "button", "server.port", "health"}, names)
	require.True(t, report.OK(), report.String())
	require.Contains(t, report.String(), "127.0.0.1:"+strconv.Itoa(port)+" is free")
	require.Contains(t, report.Checks[0].Message, "not found")
}
