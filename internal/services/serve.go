// Package services holds the business logic behind the CLI commands, kept
// apart from cobra so it can be driven from tests.
package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/conneroisu/livedown/internal/browser"
	"github.com/conneroisu/livedown/internal/config"
	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/logging"
	"github.com/conneroisu/livedown/internal/server"
)

// BrowserOpener launches a browser on uri. command is the optional user
// supplied browser command line.
type BrowserOpener func(ctx context.Context, uri, command string) error

// ServeService runs a livedown server in the foreground.
type ServeService struct {
	config     *config.Config
	logger     logging.Logger
	openURI    BrowserOpener
	serverOpts []server.Option
	ready      func(*server.Server)
}

// ServeOption configures a ServeService.
type ServeOption func(*ServeService)

// WithBrowserOpener replaces browser.Open.
func WithBrowserOpener(fn BrowserOpener) ServeOption {
	return func(s *ServeService) { s.openURI = fn }
}

// WithServerOptions passes extra options to server.New.
func WithServerOptions(opts ...server.Option) ServeOption {
	return func(s *ServeService) { s.serverOpts = append(s.serverOpts, opts...) }
}

// WithReadyHook is called with the running server once it is listening.
func WithReadyHook(fn func(*server.Server)) ServeOption {
	return func(s *ServeService) { s.ready = fn }
}

// NewServeService creates a new serve service
func NewServeService(cfg *config.Config, logger logging.Logger, opts ...ServeOption) *ServeService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &ServeService{
		config:  cfg,
		logger:  logger,
		openURI: browser.Open,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.openURI == nil {
		s.openURI = browser.Open
	}
	return s
}

// ServeOptions contains options for the serve process
type ServeOptions struct {
	Path string
	// Out receives user facing notices such as the browser fallback hint.
	Out io.Writer
}

// Serve starts the preview and blocks until ctx is cancelled, in which case
// the server is stopped gracefully, or until a kill request stops it.
func (s *ServeService) Serve(ctx context.Context, opts ServeOptions) error {
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	// Kill must not bypass deferred cleanup: Done reports the stop instead
	serverOpts := append([]server.Option{
		server.WithLogger(s.logger),
		server.WithExitFunc(func(int) {}),
	}, s.serverOpts...)

	srv, err := server.New(s.config, serverOpts...)
	if err != nil {
		return err
	}

	if err := srv.Start(ctx, opts.Path); err != nil {
		return err
	}
	uri := srv.URI()
	s.logger.Info(ctx, "Markdown preview started", "uri", uri, "document", opts.Path)

	if s.config.Server.Open {
		if err := s.openURI(ctx, uri, s.config.Browser.Command); err != nil {
			s.logger.Debug(ctx, "Browser launch failed", "error", err.Error())
			fmt.Fprintf(opts.Out, "Cannot open browser, please visit %s\n", uri)
		}
	}

	if s.ready != nil {
		s.ready(srv)
	}

	select {
	case err := <-srv.Done():
		s.logger.Info(context.Background(), "Server stopped by kill request")
		return err
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info(stopCtx, "Shutting down server...")
	if err := srv.Stop(stopCtx); err != nil {
		return err
	}
	return <-srv.Done()
}

// StopRemote asks the livedown instance listening on host:port to shut down.
func StopRemote(ctx context.Context, host string, port int, timeout time.Duration) error {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	uri := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, uri, nil)
	if err != nil {
		return errors.WrapNetwork(err, errors.ErrCodeShutdown, "cannot build stop request")
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return errors.WrapNetwork(err, errors.ErrCodeShutdown, "server did not answer the stop request").
			WithContext("uri", uri)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewLifecycleError(errors.ErrCodeShutdown,
			fmt.Sprintf("stop request to %s answered %s", uri, resp.Status))
	}
	return nil
}
