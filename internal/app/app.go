package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rbright/ledlink/internal/cli"
	"github.com/rbright/ledlink/internal/config"
	"github.com/rbright/ledlink/internal/doctor"
	"github.com/rbright/ledlink/internal/indicator"
	"github.com/rbright/ledlink/internal/ipc"
	"github.com/rbright/ledlink/internal/logging"
	"github.com/rbright/ledlink/internal/netstack"
	"github.com/rbright/ledlink/internal/peer"
	"github.com/rbright/ledlink/internal/server"
	"github.com/rbright/ledlink/internal/version"
)

const forwardTimeout = 500 * time.Millisecond

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("ledlink"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("ledlink"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	level, _ := config.ParseLevel(cfgLoaded.Config.Log.Level)

	opts := logging.Options{Level: level}
	if cfgLoaded.Config.Log.Console && longRunning(parsed.Command) {
		opts.Console = r.Stderr
	}
	logRuntime, err := logging.New(opts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandPress:
		return r.commandPress(ctx)
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandPeer:
		return r.commandPeer(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func longRunning(cmd cli.Command) bool {
	return cmd == cli.CommandServe || cmd == cli.CommandPeer
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, formatStatus(resp))
	return 0
}

func formatStatus(resp ipc.Response) string {
	led := "off"
	if resp.LEDOn {
		led = "on"
	}
	parts := []string{resp.State, "led=" + led}
	if resp.Peer != "" {
		parts = append(parts, "peer="+resp.Peer)
	}
	if resp.Sent > 0 {
		parts = append(parts, fmt.Sprintf("sent=%d", resp.Sent))
	}
	if resp.Pending {
		parts = append(parts, "pending=true")
	}
	if resp.Dropped > 0 {
		parts = append(parts, fmt.Sprintf("dropped=%d", resp.Dropped))
	}
	return strings.Join(parts, " ")
}

func (r Runner) commandPress(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandPress)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no running ledlink server")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandServe claims the control socket before the TCP port; a second
// instance fails with ErrAlreadyRunning.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	var control net.Listener
	if socketPath, err := ipc.RuntimeSocketPath(); err != nil {
		logger.Warn("control socket disabled", "error", err.Error())
	} else {
		control, err = ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			_ = control.Close()
			_ = os.Remove(socketPath)
		}()
	}

	cues := indicator.New(cfg.Indicator, logger)
	defer func() { _ = cues.Close() }()

	srv, err := server.New(cfg, logger, server.WithCues(cues))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	serveCtx, serveCancel := context.WithCancel(ctx)
	defer serveCancel()

	ipcErrCh := make(chan error, 1)
	if control != nil {
		go func() { ipcErrCh <- ipc.Serve(serveCtx, control, srv) }()
	} else {
		ipcErrCh <- nil
	}

	runErr := srv.Run(serveCtx)
	serveCancel()
	if ipcErr := <-ipcErrCh; ipcErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", ipcErr)
		return 1
	}
	if runErr != nil {
		logger.Error("server stopped", "error", runErr.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	logger.Info("server stopped")
	return 0
}

func (r Runner) commandPeer(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	var led peer.LED = peer.LogLED{Logger: logger}
	if pin := strings.TrimSpace(cfg.Peer.LEDPin); pin != "" {
		pinLED, err := peer.OpenLED(pin)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		led = pinLED
	}

	err := peer.Run(ctx, peer.Config{
		Address: cfg.Peer.Address,
		KeepAlive: netstack.KeepAlive{
			Idle:     cfg.KeepAlive.Idle(),
			Interval: cfg.KeepAlive.Interval(),
			Count:    cfg.KeepAlive.Count,
		},
	}, led, logger)
	if err != nil {
		logger.Error("peer stopped", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// tryForward reports handled=false when no server owns the socket.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}
	if ipc.IsUnavailable(err) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
