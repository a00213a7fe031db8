package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for refresh runs. A nil *Metrics or
// a disabled configuration is a no-op, so callers never guard their calls.
type Metrics struct {
	config MetricsConfig

	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	phaseOutcomes *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec

	transferAttempts *prometheus.CounterVec
	transferBytes    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of refresh runs started",
		}),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of refresh runs completed",
			},
			[]string{"state"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of refresh runs in seconds",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"state"},
		),
		phaseOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_outcomes_total",
				Help:      "Classified phase outcomes",
			},
			[]string{"phase", "status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of individual phases in seconds",
				Buckets:   []float64{0.1, 1, 10, 60, 300, 900, 1800, 3600},
			},
			[]string{"phase", "status"},
		),
		transferAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_attempts_total",
				Help:      "Transfer strategy attempts by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		transferBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "Total artifact bytes moved",
		}),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.phaseOutcomes,
		m.phaseDuration,
		m.transferAttempts,
		m.transferBytes,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RunStarted counts one started run.
func (m *Metrics) RunStarted() {
	if !m.enabled() {
		return
	}
	m.runsStarted.Inc()
}

// RunCompleted records a terminal run state and its duration.
func (m *Metrics) RunCompleted(state string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(state).Inc()
	m.runDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// ObservePhase records one classified phase outcome.
func (m *Metrics) ObservePhase(phase, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.phaseOutcomes.WithLabelValues(phase, status).Inc()
	m.phaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

// TransferAttempt records one strategy attempt (outcome: success/failure).
func (m *Metrics) TransferAttempt(strategy, outcome string) {
	if !m.enabled() {
		return
	}
	m.transferAttempts.WithLabelValues(strategy, outcome).Inc()
}

// AddTransferBytes counts moved artifact bytes.
func (m *Metrics) AddTransferBytes(n int64) {
	if !m.enabled() || n <= 0 {
		return
	}
	m.transferBytes.Add(float64(n))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics endpoint until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context) error {
	if !m.enabled() {
		return nil
	}

	mux := http.NewServeMux()
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, m.Handler())

	srv := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
