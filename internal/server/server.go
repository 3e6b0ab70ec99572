// Package server runs one livedown instance: the HTTP listener, the push
// channel and the Session watching the document.
//
// A Server moves through Idle, Running and Stopped, in that order. Stopped is
// terminal; a stopped Server cannot be started again.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/conneroisu/livedown/internal/config"
	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/logging"
	"github.com/conneroisu/livedown/internal/monitoring"
	"github.com/conneroisu/livedown/internal/renderer"
	"github.com/conneroisu/livedown/internal/session"
	"github.com/conneroisu/livedown/internal/version"
	"github.com/conneroisu/livedown/internal/websocket"
)

// State is the lifecycle state of a Server.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type options struct {
	logger  logging.Logger
	metrics *monitoring.Metrics
	clock   clockwork.Clock
	exit    func(code int)
}

// Option configures a Server.
type Option func(*options)

func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the clock driving the watcher debounce.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithExitFunc replaces os.Exit as the last step of Kill.
func WithExitFunc(fn func(code int)) Option {
	return func(o *options) { o.exit = fn }
}

// Server owns the listener, the viewer registry and the Session of one
// livedown instance.
type Server struct {
	config   *config.Config
	logger   logging.Logger
	metrics  *monitoring.Metrics
	exit     func(code int)
	registry *websocket.Registry
	session  *session.Session
	health   *monitoring.HealthMonitor

	mutex      sync.Mutex
	state      State
	listener   net.Listener
	httpServer *http.Server

	served   chan struct{}
	serveErr error

	stopped  chan struct{}
	done     chan error
	killOnce sync.Once
}

// New creates an idle Server. A nil cfg uses config.Default.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid server configuration")
	}

	o := options{
		clock: clockwork.NewRealClock(),
		exit:  os.Exit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger(&logging.LoggerConfig{
			Level:  cfg.LogLevel(),
			Format: cfg.Logging.Format,
		})
	}
	if o.metrics == nil {
		o.metrics = monitoring.NewMetrics(nil)
	}

	registry := websocket.NewRegistry(o.logger, o.metrics)
	sess := session.New(renderer.New(), registry, o.logger,
		session.WithDebounce(cfg.Watcher.Debounce),
		session.WithClock(o.clock),
		session.WithMetrics(o.metrics),
	)

	s := &Server{
		config:   cfg,
		logger:   o.logger.WithComponent("server"),
		metrics:  o.metrics,
		exit:     o.exit,
		registry: registry,
		session:  sess,
		served:   make(chan struct{}),
		stopped:  make(chan struct{}),
		done:     make(chan error, 1),
	}
	s.health = s.newHealthMonitor()
	return s, nil
}

// Start validates path, binds the listener and starts watching. On any
// failure the Server stays Idle and nothing is left listening.
func (s *Server) Start(ctx context.Context, path string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != StateIdle {
		return errors.NewLifecycleError(errors.ErrCodeInvalidState,
			fmt.Sprintf("cannot start a %s server", s.state))
	}
	if path == "" {
		return errors.ErrMissingPath
	}
	if err := checkDocument(path); err != nil {
		return err
	}

	addr := s.config.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.BindError(addr, err)
	}

	if err := s.session.Start(ctx, path); err != nil {
		_ = listener.Close()
		return err
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.state = StateRunning

	go s.serve(s.httpServer, listener)

	s.logger.Info(ctx, "Livedown server started", "uri", s.uriLocked(), "addr", listener.Addr().String(), "document", path)
	return nil
}

// checkDocument opens path once so that a missing or unreadable document
// fails Start instead of producing an empty preview.
func checkDocument(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.DocumentUnavailable(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.DocumentUnavailable(path, err)
	}
	if info.IsDir() {
		return errors.DocumentUnavailable(path, fmt.Errorf("%s is a directory", path))
	}
	return nil
}

func (s *Server) serve(httpServer *http.Server, listener net.Listener) {
	err := httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		err = nil
	}
	s.serveErr = err
	close(s.served)

	if err != nil {
		s.logger.Error(context.Background(), err, "HTTP server failed, shutting down")
		go func() {
			_ = s.Stop(context.Background())
		}()
	}
}

// Stop stops the Session, closes every viewer and releases the listener.
// It returns once the port is free. Stopping a stopped Server waits for the
// first Stop to finish and returns nil.
func (s *Server) Stop(ctx context.Context) error {
	s.mutex.Lock()
	switch s.state {
	case StateStopped:
		s.mutex.Unlock()
		select {
		case <-s.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case StateIdle:
		s.state = StateStopped
		s.mutex.Unlock()
		_ = s.session.Stop()
		_ = s.registry.CloseAll(ctx)
		s.finish(nil)
		return nil
	}
	s.state = StateStopped
	httpServer := s.httpServer
	s.mutex.Unlock()

	perf := logging.StartOperation(s.logger, "shutdown")

	sessionErr := s.session.Stop()
	if sessionErr != nil {
		s.logger.Warn(ctx, sessionErr, "Failed to stop session cleanly")
	}

	viewersErr := s.registry.CloseAll(ctx)

	shutdownErr := httpServer.Shutdown(ctx)
	if shutdownErr != nil {
		s.logger.Warn(ctx, shutdownErr, "HTTP server did not shut down gracefully")
		_ = httpServer.Close()
	}
	<-s.served

	perf.End(ctx)
	s.logger.Info(ctx, "Livedown server stopped")

	var err error
	if shutdownErr != nil || viewersErr != nil {
		err = errors.Wrap(errors.CombineErrors(shutdownErr, viewersErr),
			errors.ErrorTypeLifecycle, errors.ErrCodeShutdown, "server did not stop cleanly")
	}
	s.finish(s.serveErr)
	return err
}

func (s *Server) finish(err error) {
	s.done <- err
	close(s.done)
	close(s.stopped)
}

// Kill tells every viewer the server is going away, stops the Server and
// exits the process with status 0. Viewers receive the kill message before
// the listener closes. Kill on an idle Server fails with ErrInvalidState.
func (s *Server) Kill(ctx context.Context) error {
	if s.State() == StateIdle {
		return errors.NewLifecycleError(errors.ErrCodeInvalidState, "cannot kill an idle server")
	}

	var err error
	s.killOnce.Do(func() {
		if s.State() == StateRunning {
			delivered := s.registry.Broadcast(websocket.KillMessage())
			s.logger.Info(ctx, "Kill requested, notifying viewers", "viewers", delivered)
			if closeErr := s.registry.CloseAll(ctx); closeErr != nil {
				s.logger.Warn(ctx, closeErr, "Some viewers did not receive the kill message")
			}
		}
		err = s.Stop(ctx)
		s.exit(0)
	})
	return err
}

// URI is the address viewers open. After Start it carries the bound port.
func (s *Server) URI() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.uriLocked()
}

func (s *Server) uriLocked() string {
	port := s.config.Server.Port
	if s.listener != nil {
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Done delivers the terminal error, nil after a clean stop, and is then
// closed.
func (s *Server) Done() <-chan error {
	return s.done
}

// Document returns the current snapshot of the watched document.
func (s *Server) Document() session.Document {
	return s.session.Document()
}

func (s *Server) newHealthMonitor() *monitoring.HealthMonitor {
	hm := monitoring.NewHealthMonitor(s.logger, version.Get().Short(), func() monitoring.Snapshot {
		return monitoring.Snapshot{
			State:    s.State().String(),
			Document: s.session.Document().Path,
			Viewers:  s.registry.Len(),
		}
	})

	hm.RegisterCheck(monitoring.NewHealthCheckFunc("server", true, func(ctx context.Context) monitoring.HealthCheck {
		if state := s.State(); state != StateRunning {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: "server is " + state.String()}
		}
		return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy, Message: "listening on " + s.Addr()}
	}))
	hm.RegisterCheck(monitoring.DocumentHealthChecker(func() string {
		return s.session.Document().Path
	}))
	return hm
}
