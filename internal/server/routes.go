package server

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/livedown/internal/websocket"
)

func (s *Server) routes() http.Handler {
	ws := websocket.NewHandler(s.registry, s.session, websocket.HandlerOptions{
		OriginPatterns:  s.config.Server.AllowedOrigins,
		ConnectionRate:  s.config.Server.ConnectionRate,
		ConnectionBurst: s.config.Server.ConnectionBurst,
		Logger:          s.logger,
		Metrics:         s.metrics,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("DELETE /{$}", s.handleKill)
	mux.Handle("GET /ws", ws)
	mux.Handle("GET /health", s.health.HTTPHandler())
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /", s.handleStatic)

	return s.withRequestLogging(securityHeaders(mux))
}

// handleIndex serves the viewer page with the current render inlined, so the
// page is complete before the push channel connects.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	doc := s.session.Document()
	templ.Handler(viewerPage(doc.Title, doc.HTML)).ServeHTTP(w, r)
}

// handleKill is the management endpoint used by "livedown stop".
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		if err := s.Kill(ctx); err != nil {
			s.logger.Error(ctx, err, "Kill did not complete cleanly")
		}
	}()
}

// handleStatic serves files next to the document, such as images it links.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := s.session.Document().Path
	if path == "" {
		http.NotFound(w, r)
		return
	}
	http.FileServer(http.Dir(filepath.Dir(path))).ServeHTTP(w, r)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String())
	})
}
