package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/ledlink/internal/ipc"
	"github.com/stretchr/testify/require"
)

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T, contents string) runnerPaths {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// syncBuffer is written by the serve goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Runner{Stdout: &stdout, Stderr: &stderr}.Execute(context.Background(), args)
	return code, stdout.String(), stderr.String()
}

func TestExecuteHelp(t *testing.T) {
	code, stdout, stderr := run(t, "--help")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "Usage:")
	require.Empty(t, stderr)
}

func TestExecuteVersion(t *testing.T) {
	code, stdout, stderr := run(t, "version")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "ledlink")
	require.Empty(t, stderr)
}

func TestExecuteUnknownCommand(t *testing.T) {
	code, _, stderr := run(t, "definitely-not-a-command")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "unknown command")
	require.Contains(t, stderr, "Usage:")
}

func TestExecuteInvalidConfig(t *testing.T) {
	paths := setupRunnerEnv(t, `{"server": {"port": 0}}`)
	code, _, stderr := run(t, "--config", paths.configPath, "status")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "server.port")
}

func TestStatusWhenNotRunning(t *testing.T) {
	paths := setupRunnerEnv(t, "\n")
	code, stdout, _ := run(t, "--config", paths.configPath, "status")
	require.Equal(t, 0, code)
	require.Equal(t, "not running\n", stdout)
}

func TestPressWithoutServerFails(t *testing.T) {
	paths := setupRunnerEnv(t, "\n")
	code, _, stderr := run(t, "--config", paths.configPath, "press")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "no running ledlink server")
}

func TestPressForwardsServerError(t *testing.T) {
	paths := setupRunnerEnv(t, "\n")
	socketPath := filepath.Join(paths.runtimeDir, "ledlink.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(func(context.Context, ipc.Request) ipc.Response {
			return ipc.Response{Error: "press is only available with button.backend=soft"}
		}))
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	code, _, stderr := run(t, "--config", paths.configPath, "press")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "button.backend=soft")
}

func TestFormatStatus(t *testing.T) {
	require.Equal(t, "idle led=off", formatStatus(ipc.Response{State: "idle"}))
	require.Equal(t,
		"connected led=on peer=10.0.0.2:4000 sent=4 pending=true dropped=3",
		formatStatus(ipc.Response{State: "connected", LEDOn: true, Peer: "10.0.0.2:4000", Sent: 4, Pending: true, Dropped: 3}),
	)
}

func TestServeEndToEnd(t *testing.T) {
	port := freePort(t)
	paths := setupRunnerEnv(t, fmt.Sprintf(`{
  "server": {"address": "127.0.0.1", "port": %d},
  "button": {"debounce_ms": 20},
  "health": {"enable": false},
  "log": {"console": true},
}`, port))

	ctx, cancel := context.WithCancel(context.Background())
	var serveOut, serveErr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- Runner{Stdout: &serveOut, Stderr: &serveErr}.Execute(ctx, []string{"--config", paths.configPath, "serve"})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case code := <-done:
			require.Equal(t, 0, code, serveErr.String())
		case <-time.After(3 * time.Second):
			t.Fatal("serve did not stop")
		}
	})

	status := func() string {
		_, stdout, _ := run(t, "--config", paths.configPath, "status")
		return strings.TrimSpace(stdout)
	}
	require.Eventually(t, func() bool { return status() == "idle led=off" }, 3*time.Second, 20*time.Millisecond)
	require.Contains(t, serveErr.String(), "listening for incoming TCP client connection")

	code, _, stderr := run(t, "--config", paths.configPath, "serve")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "already running")

	client, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return strings.HasPrefix(status(), "connected led=off peer=") }, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, stdout, _ := run(t, "--config", paths.configPath, "press")
		return strings.Contains(stdout, "press delivered")
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, 1)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	require.Equal(t, byte('1'), buf[0])

	_, err = client.Write([]byte("LED ON ACK"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.HasPrefix(status(), "connected led=on") }, 3*time.Second, 20*time.Millisecond)
}
