// Package monitoring exposes Prometheus metrics and the health report for a
// running livedown server.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livedown"

// Metrics holds the collectors updated by the session, the viewer registry
// and the watcher. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ViewersConnected   prometheus.Gauge
	ViewerConnections  *prometheus.CounterVec
	MessagesBroadcast  *prometheus.CounterVec
	SlowViewersDropped prometheus.Counter
	Renders            prometheus.Counter
	RenderDuration     prometheus.Histogram
	ReadErrors         prometheus.Counter
	StaleReads         prometheus.Counter
	FileEvents         *prometheus.CounterVec
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetrics creates the livedown collectors and registers them on reg. A nil
// reg gets a fresh registry from NewRegistry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		ViewersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "viewers_connected",
			Help:      "Number of viewers currently attached.",
		}),
		ViewerConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Viewer connection attempts by result (accepted/rejected/error).",
		}, []string{"result"}),
		MessagesBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_broadcast_total",
			Help:      "Messages queued to viewers by message type.",
		}, []string{"type"}),
		SlowViewersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_viewers_dropped_total",
			Help:      "Viewers dropped because their send buffer was full.",
		}),
		Renders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "renders_total",
			Help:      "Successful document renders.",
		}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "render_duration_seconds",
			Help:      "Time spent converting the document to HTML.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "read_errors_total",
			Help:      "Document reads that failed and were skipped.",
		}),
		StaleReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stale_reads_total",
			Help:      "Read results discarded because a newer read was already applied.",
		}),
		FileEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "events_total",
			Help:      "Change notifications delivered by the watcher by event type.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.ViewersConnected,
		m.ViewerConnections,
		m.MessagesBroadcast,
		m.SlowViewersDropped,
		m.Renders,
		m.RenderDuration,
		m.ReadErrors,
		m.StaleReads,
		m.FileEvents,
	)
	return m
}

// Handler returns an http.Handler that serves the Prometheus exposition.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ViewerAttached() {
	if m == nil {
		return
	}
	m.ViewersConnected.Inc()
	m.ViewerConnections.WithLabelValues("accepted").Inc()
}

func (m *Metrics) ViewerDetached() {
	if m == nil {
		return
	}
	m.ViewersConnected.Dec()
}

// ConnectionRejected counts a viewer that never got attached. result is
// "rejected" for rate limiting and "error" for failed handshakes.
func (m *Metrics) ConnectionRejected(result string) {
	if m == nil {
		return
	}
	m.ViewerConnections.WithLabelValues(result).Inc()
}

func (m *Metrics) MessageBroadcast(msgType string, delivered int) {
	if m == nil {
		return
	}
	m.MessagesBroadcast.WithLabelValues(msgType).Add(float64(delivered))
}

func (m *Metrics) SlowViewerDropped() {
	if m == nil {
		return
	}
	m.SlowViewersDropped.Inc()
}

func (m *Metrics) DocumentRendered(d time.Duration) {
	if m == nil {
		return
	}
	m.Renders.Inc()
	m.RenderDuration.Observe(d.Seconds())
}

func (m *Metrics) ReadFailed() {
	if m == nil {
		return
	}
	m.ReadErrors.Inc()
}

func (m *Metrics) StaleReadDiscarded() {
	if m == nil {
		return
	}
	m.StaleReads.Inc()
}

func (m *Metrics) FileEvent(event string) {
	if m == nil {
		return
	}
	m.FileEvents.WithLabelValues(event).Inc()
}
