// Package server wires the LED command server: the listening stack, the event
// callbacks, the button interrupt, and the dispatch worker.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/ledlink/internal/button"
	"github.com/rbright/ledlink/internal/command"
	"github.com/rbright/ledlink/internal/config"
	"github.com/rbright/ledlink/internal/dispatch"
	"github.com/rbright/ledlink/internal/events"
	"github.com/rbright/ledlink/internal/health"
	"github.com/rbright/ledlink/internal/ipc"
	"github.com/rbright/ledlink/internal/logging"
	"github.com/rbright/ledlink/internal/netstack"
	"github.com/rbright/ledlink/internal/notify"
	"github.com/rbright/ledlink/internal/registry"
)

// ErrNoSoftButton is returned by press when the button is a physical line.
var ErrNoSoftButton = errors.New("press is only available with button.backend=soft")

// Cues is the union of the lifecycle and send hooks.
type Cues interface {
	events.Cues
	dispatch.Cues
}

// Server owns every component of one running instance.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	registry *registry.Registry
	state    *command.State
	slot     *notify.Slot
	source   button.Source
	soft     *button.Soft
	isr      *button.Interrupt
	events   *events.Set
	stack    *netstack.Stack
	worker   *dispatch.Worker
	health   *health.Server
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	source  button.Source
	cues    Cues
	observe func(command.Command, dispatch.Outcome)
}

// WithSource replaces the configured button backend.
func WithSource(src button.Source) Option {
	return func(o *options) { o.source = src }
}

func WithCues(c Cues) Option {
	return func(o *options) { o.cues = c }
}

// WithDispatchObserver receives every worker outcome.
func WithDispatchObserver(fn func(command.Command, dispatch.Outcome)) Option {
	return func(o *options) { o.observe = fn }
}

// New binds the server and health listeners and builds the pipeline. Nothing
// runs until Run.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	logger = logging.OrDiscard(logger)
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		state:  &command.State{},
		slot:   notify.NewSlot(),
	}

	source, err := s.openSource(o.source)
	if err != nil {
		return nil, err
	}
	s.source = source
	s.soft, _ = source.(*button.Soft)

	if cfg.Health.Enable {
		hs, err := health.Listen(cfg.Health.Address)
		if err != nil {
			return nil, err
		}
		s.health = hs
	}
	s.registry = registry.New(s.observe)

	stack, err := netstack.Listen(netstack.ListenConfig{
		Address: cfg.Server.Address,
		Port:    cfg.Server.Port,
		Backlog: cfg.Server.Backlog,
	}, logger.With("component", "netstack"))
	if err != nil {
		s.closeHealth()
		return nil, fmt.Errorf("bind server socket: %w", err)
	}
	s.stack = stack

	var eventCues events.Cues
	var sendCues dispatch.Cues
	if o.cues != nil {
		eventCues, sendCues = o.cues, o.cues
	}

	s.events = events.NewSet(events.Config{
		KeepAlive: netstack.KeepAlive{
			Idle:     cfg.KeepAlive.Idle(),
			Interval: cfg.KeepAlive.Interval(),
			Count:    cfg.KeepAlive.Count,
		},
		MaxReceive:     cfg.Server.MaxRecvBytes,
		ReceiveTimeout: cfg.Server.RecvTimeout(),
		ListenPort:     stack.Endpoint().Port,
	}, s.registry, s.state, logger, eventCues)

	s.isr = button.NewInterrupt(s.state, s.slot)
	workerOpts := []dispatch.Option{
		dispatch.WithDebounce(cfg.Button.Debounce()),
		dispatch.WithCues(sendCues),
	}
	if o.observe != nil {
		workerOpts = append(workerOpts, dispatch.WithObserver(o.observe))
	}
	s.worker = dispatch.New(s.slot, s.source, s.registry, s.state, logger, workerOpts...)
	return s, nil
}

func (s *Server) openSource(override button.Source) (button.Source, error) {
	if override != nil {
		return override, nil
	}
	switch strings.ToLower(strings.TrimSpace(s.cfg.Button.Backend)) {
	case config.BackendGPIO:
		g, err := button.OpenGPIO(s.cfg.Button.Pin, s.cfg.Button.ActiveLow)
		if err != nil {
			return nil, fmt.Errorf("open button: %w", err)
		}
		return g, nil
	default:
		return button.NewSoft(), nil
	}
}

// observe runs under the registry lock and must not call back into it.
func (s *Server) observe(snap registry.Snapshot) {
	if s.health != nil {
		s.health.Observe(snap)
	}
	s.logger.Debug("link state changed", "state", string(snap.State), "peer", snap.PeerAddr, "sent", snap.Sent)
}

// Endpoint reports the bound server address.
func (s *Server) Endpoint() netstack.Endpoint {
	return s.stack.Endpoint()
}

// HealthAddr is empty when the health endpoint is disabled.
func (s *Server) HealthAddr() string {
	if s.health == nil {
		return ""
	}
	return s.health.Addr().String()
}

// Run serves until ctx is cancelled or a component fails. Every component is
// stopped before Run returns.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("listening for incoming TCP client connection", "port", s.stack.Endpoint().Port)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errOnce.Do(func() { firstErr = fmt.Errorf("%s: %w", name, err) })
				cancel()
			}
		}()
	}

	run("button", func(ctx context.Context) error { return s.source.Run(ctx, s.isr.OnEdge) })
	run("worker", s.worker.Run)
	run("stack", func(ctx context.Context) error { return s.stack.Serve(ctx, s.events.Callbacks()) })
	if s.health != nil {
		run("health", s.health.Serve)
	}

	wg.Wait()
	return firstErr
}

func (s *Server) closeHealth() {
	if s.health != nil {
		_ = s.health.Close()
	}
}

// Status snapshots the link for the control socket.
func (s *Server) Status() ipc.Response {
	snap := s.registry.Snapshot()
	return ipc.Response{
		OK:      true,
		State:   string(snap.State),
		LEDOn:   s.state.LEDOn(),
		Peer:    snap.PeerAddr,
		Sent:    snap.Sent,
		Pending: s.slot.Pending(),
		Dropped: s.isr.Dropped(),
	}
}

// Press raises a software button edge. The press stays down through the
// configured debounce so the worker's re-sample still sees it.
func (s *Server) Press() (bool, error) {
	if s.soft == nil {
		return false, ErrNoSoftButton
	}
	return s.soft.Press(s.pressHold()), nil
}

func (s *Server) pressHold() time.Duration {
	return s.cfg.Button.Debounce() + button.DefaultHold
}

// Handle serves control socket requests.
func (s *Server) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch strings.ToLower(strings.TrimSpace(req.Command)) {
	case ipc.CommandStatus:
		return s.Status()
	case ipc.CommandPress:
		delivered, err := s.Press()
		if err != nil {
			return ipc.Response{Error: err.Error()}
		}
		resp := s.Status()
		if delivered {
			resp.Message = "press delivered"
		} else {
			resp.Message = "press ignored; button is masked while a command is dispatched"
		}
		return resp
	default:
		return ipc.Response{Error: fmt.Sprintf("unsupported command %q", req.Command)}
	}
}
