package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/conneroisu/livedown/internal/logging"
	"github.com/conneroisu/livedown/internal/monitoring"
)

// Attacher receives viewers accepted by the Handler. Attach registers the
// viewer and pushes the current state to it; Detach undoes Attach.
type Attacher interface {
	Attach(ctx context.Context, v *Viewer) error
	Detach(v *Viewer)
}

// HandlerOptions configures the push channel endpoint.
type HandlerOptions struct {
	// OriginPatterns lists extra hosts allowed to connect cross-origin.
	OriginPatterns []string
	// ConnectionRate limits accepted connections per second. Zero or less
	// disables limiting.
	ConnectionRate  float64
	ConnectionBurst int

	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration

	Logger  logging.Logger
	Metrics *monitoring.Metrics
}

// Handler upgrades HTTP requests to websocket viewers.
type Handler struct {
	registry *Registry
	attacher Attacher
	limiter  *rate.Limiter
	opts     HandlerOptions
	logger   logging.Logger
}

// NewHandler creates the push channel endpoint.
func NewHandler(registry *Registry, attacher Attacher, opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.ConnectionRate > 0 {
		burst := opts.ConnectionBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.ConnectionRate), burst)
	}

	return &Handler{
		registry: registry,
		attacher: attacher,
		limiter:  limiter,
		opts:     opts,
		logger:   opts.Logger.WithComponent("websocket"),
	}
}

// ServeHTTP accepts one viewer and blocks until it disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.registry.Closed() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if !h.limiter.Allow() {
		h.logger.Warn(r.Context(), nil, "Viewer connection rejected: rate limit exceeded", "remote", r.RemoteAddr)
		h.opts.Metrics.ConnectionRejected("rejected")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.opts.OriginPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		// Accept has already written the error response
		h.logger.Warn(r.Context(), err, "Viewer upgrade failed", "remote", r.RemoteAddr)
		h.opts.Metrics.ConnectionRejected("error")
		return
	}

	// Viewers never send data; reading only services pings and close frames
	readCtx := conn.CloseRead(context.Background())

	viewer := NewViewer(conn, h.opts.SendBuffer)
	viewer.startPump(h.logger, h.opts.WriteTimeout, h.opts.PingInterval)

	if err := h.attacher.Attach(readCtx, viewer); err != nil {
		h.logger.Debug(r.Context(), "Viewer not attached", "viewer", viewer.ID().String(), "error", err.Error())
		viewer.closeSend()
		<-viewer.Done()
		return
	}

	select {
	case <-readCtx.Done():
	case <-viewer.Done():
	}
	h.attacher.Detach(viewer)
}
