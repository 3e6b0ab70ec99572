package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/conneroisu/livedown/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the result of a single health check
type HealthCheck struct {
	Name     string       `json:"name"`
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Critical bool         `json:"critical"`
}

// HealthChecker defines the interface for health check functions
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
	Name() string
	IsCritical() bool
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc struct {
	name     string
	checkFn  func(ctx context.Context) HealthCheck
	critical bool
}

func (h *HealthCheckFunc) Check(ctx context.Context) HealthCheck {
	result := h.checkFn(ctx)
	result.Name = h.name
	result.Critical = h.critical
	return result
}

func (h *HealthCheckFunc) Name() string {
	return h.name
}

func (h *HealthCheckFunc) IsCritical() bool {
	return h.critical
}

// NewHealthCheckFunc creates a new health check function
func NewHealthCheckFunc(
	name string,
	critical bool,
	checkFn func(ctx context.Context) HealthCheck,
) *HealthCheckFunc {
	return &HealthCheckFunc{
		name:     name,
		checkFn:  checkFn,
		critical: critical,
	}
}

// Snapshot is the server state reported alongside the checks.
type Snapshot struct {
	State    string
	Document string
	Viewers  int
}

// HealthResponse is the body served on /health
type HealthResponse struct {
	Status   HealthStatus           `json:"status"`
	State    string                 `json:"state"`
	Document string                 `json:"document"`
	Viewers  int                    `json:"viewers"`
	Version  string                 `json:"version"`
	Uptime   string                 `json:"uptime"`
	Checks   map[string]HealthCheck `json:"checks,omitempty"`
}

// HealthMonitor runs registered checks on demand and builds the health report.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    []HealthChecker
	snapshot  func() Snapshot
	version   string
	startTime time.Time
	logger    logging.Logger
}

// NewHealthMonitor creates a monitor that reports snapshot() on every request.
func NewHealthMonitor(logger logging.Logger, version string, snapshot func() Snapshot) *HealthMonitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HealthMonitor{
		snapshot:  snapshot,
		version:   version,
		startTime: time.Now(),
		logger:    logger.WithComponent("health"),
	}
}

// RegisterCheck adds a health check
func (hm *HealthMonitor) RegisterCheck(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks = append(hm.checks, checker)
}

// GetHealth runs every check and returns the aggregated report
func (hm *HealthMonitor) GetHealth(ctx context.Context) HealthResponse {
	hm.mu.RLock()
	checkers := make([]HealthChecker, len(hm.checks))
	copy(checkers, hm.checks)
	hm.mu.RUnlock()

	results := make(map[string]HealthCheck, len(checkers))
	for _, checker := range checkers {
		result := checker.Check(ctx)
		results[checker.Name()] = result
		if result.Status != HealthStatusHealthy {
			hm.logger.Debug(ctx, "Health check not healthy",
				"check", checker.Name(),
				"status", string(result.Status),
				"message", result.Message)
		}
	}

	var snap Snapshot
	if hm.snapshot != nil {
		snap = hm.snapshot()
	}

	return HealthResponse{
		Status:   calculateOverallStatus(results),
		State:    snap.State,
		Document: snap.Document,
		Viewers:  snap.Viewers,
		Version:  hm.version,
		Uptime:   time.Since(hm.startTime).Round(time.Second).String(),
		Checks:   results,
	}
}

// calculateOverallStatus determines the overall health status
func calculateOverallStatus(checks map[string]HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch {
		case check.Critical && check.Status == HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case check.Status != HealthStatusHealthy:
			status = HealthStatusDegraded
		}
	}
	return status
}

// HTTPHandler returns an HTTP handler for health checks
func (hm *HealthMonitor) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.GetHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(health); err != nil {
			hm.logger.Error(r.Context(), err, "Failed to encode health response")
		}
	}
}

// DocumentHealthChecker reports whether the watched document is readable.
// A missing document degrades the report; the last render is still served.
func DocumentHealthChecker(path func() string) HealthChecker {
	return NewHealthCheckFunc("document", false, func(ctx context.Context) HealthCheck {
		p := path()
		if p == "" {
			return HealthCheck{Status: HealthStatusDegraded, Message: "No document is being watched"}
		}

		info, err := os.Stat(p)
		if err != nil {
			return HealthCheck{Status: HealthStatusDegraded, Message: fmt.Sprintf("Cannot stat document: %v", err)}
		}
		if info.IsDir() {
			return HealthCheck{Status: HealthStatusDegraded, Message: "Document path is a directory"}
		}

		return HealthCheck{Status: HealthStatusHealthy, Message: "Document is readable"}
	})
}
