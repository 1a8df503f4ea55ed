// Package metrics exposes Prometheus collectors for chat turns, tool calls
// and agent builds.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deepagent"

// Status label values.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	turns       *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec
	toolCalls   *prometheus.CounterVec
	agentBuilds *prometheus.CounterVec
}

// MustNew creates the collectors and registers them with reg, panicking on
// a registration conflict.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "turns_total",
				Help:      "Chat turns by mode and outcome.",
			},
			[]string{"mode", "status"},
		),
		turnLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "turn_duration_seconds",
				Help:      "Time from submitting a turn to receiving the reply.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"mode"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "tool_calls_total",
				Help:      "Tool calls by tool and outcome.",
			},
			[]string{"tool", "status"},
		),
		agentBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "builds_total",
				Help:      "Agent constructions by mode and outcome.",
			},
			[]string{"mode", "status"},
		),
	}
	reg.MustRegister(m.turns, m.turnLatency, m.toolCalls, m.agentBuilds)
	return m
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, status).Inc()
	if status == StatusOK {
		m.turnLatency.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// ObserveToolCall records a tool call outcome.
func (m *Metrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// ObserveBuild records an agent build outcome.
func (m *Metrics) ObserveBuild(mode, status string) {
	if m == nil {
		return
	}
	m.agentBuilds.WithLabelValues(mode, status).Inc()
}

// Status maps an error to a status label.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.Canceled):
		return StatusCancelled
	default:
		return StatusError
	}
}

// Server serves /metrics for a gatherer.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler returns the server's handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background. Errors other than a clean shutdown go to errc.
func (s *Server) Start(errc chan<- error) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if errc != nil {
				errc <- err
			}
		}
	}()
}

// Close shuts the server down.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
