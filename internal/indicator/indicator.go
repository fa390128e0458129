// Package indicator surfaces link events as desktop notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/config"
	"github.com/rbright/ledlink/internal/logging"
)

const (
	dispatchTimeout = 400 * time.Millisecond
	cueTimeout      = 2 * time.Second
	noticeTimeoutMS = 2500
)

// Notifier implements the cue hooks of the event callbacks and the worker.
// Every hook returns immediately; output happens on background goroutines.
type Notifier struct {
	cfg     config.IndicatorConfig
	logger  *slog.Logger
	desktop desktop
	play    func(context.Context, string, cueKind) error

	mu             sync.Mutex
	notificationID uint32
	notifyMu       sync.Mutex
	soundMu        sync.Mutex
	wg             sync.WaitGroup
}

// New creates a notifier backed by the session bus and the pulse server.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:     cfg,
		logger:  logging.OrDiscard(logger),
		desktop: &sessionBus{},
		play:    playSynthCue,
	}
}

func (n *Notifier) PeerConnected(addr string) {
	n.playCue(cueConnect)
	n.notify("Client connected: " + addr)
}

func (n *Notifier) PeerDisconnected() {
	n.playCue(cueDisconnect)
	n.notify("Client disconnected")
}

func (n *Notifier) AckReceived(ledOn bool) {
	if ledOn {
		n.notify("LED is on")
		return
	}
	n.notify("LED is off")
}

func (n *Notifier) CommandSent(cmd command.Command) {
	if cmd == command.On {
		n.playCue(cueLEDOn)
	} else {
		n.playCue(cueLEDOff)
	}
}

// Close waits for in-flight output and releases the bus connection.
func (n *Notifier) Close() error {
	n.wg.Wait()
	return n.desktop.Close()
}

func (n *Notifier) appName() string {
	if name := strings.TrimSpace(n.cfg.DesktopAppName); name != "" {
		return name
	}
	return "ledlink"
}

// notify replaces the previous notification with summary.
func (n *Notifier) notify(summary string) {
	if !n.cfg.Enable {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.notifyMu.Lock()
		defer n.notifyMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		n.mu.Lock()
		replaceID := n.notificationID
		n.mu.Unlock()

		id, err := n.desktop.Notify(ctx, n.appName(), replaceID, summary, noticeTimeoutMS)
		if err != nil {
			n.log("indicator dispatch failed", err)
			return
		}
		n.mu.Lock()
		n.notificationID = id
		n.mu.Unlock()
	}()
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := n.play(ctx, n.appName(), kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures.
func (n *Notifier) log(message string, err error) {
	n.logger.Debug(message, "error", err.Error())
}
