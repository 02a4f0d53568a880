package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the scheduling engine.
type Metrics struct {
	config MetricsConfig

	// Job metrics
	jobsSubmitted *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepRetries   prometheus.Counter

	// Agent RPC metrics
	agentCalls    *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	agentErrors   *prometheus.CounterVec

	// Lock metrics
	locksGranted prometheus.Gauge
	lockWaiters  prometheus.Gauge

	// Alert metrics
	alertsActive *prometheus.GaugeVec

	// System metrics
	jobsRunning prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// With metrics disabled, every recording method is a no-op.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		jobsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_submitted_total",
				Help:      "Total number of jobs submitted",
			},
			[]string{"outcome"}, // admitted, rejected
		),
		jobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs reaching a terminal status",
			},
			[]string{"status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration from first step to terminal status in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of step executions",
			},
			[]string{"status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		stepRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of idempotent step retries after communication failures",
			},
		),

		agentCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_calls_total",
				Help:      "Total number of agent RPC invocations",
			},
			[]string{"plugin"},
		),
		agentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_call_duration_seconds",
				Help:      "Duration of agent RPC invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"plugin"},
		),
		agentErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_errors_total",
				Help:      "Total number of agent RPC failures by class",
			},
			[]string{"plugin", "class"}, // comm, result
		),

		locksGranted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "locks_granted",
				Help:      "Current number of granted object locks",
			},
		),
		lockWaiters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "lock_waiters",
				Help:      "Current number of jobs waiting on locks",
			},
		),

		alertsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "alerts_active",
				Help:      "Current number of active alerts by type",
			},
			[]string{"type"},
		),

		jobsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_running",
				Help:      "Current number of jobs in running status",
			},
		),
	}

	registry.MustRegister(
		m.jobsSubmitted,
		m.jobsCompleted,
		m.jobDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.stepRetries,
		m.agentCalls,
		m.agentDuration,
		m.agentErrors,
		m.locksGranted,
		m.lockWaiters,
		m.alertsActive,
		m.jobsRunning,
	)

	return m, nil
}

// RecordJobSubmitted counts a submission by outcome (admitted or rejected).
func (m *Metrics) RecordJobSubmitted(outcome string) {
	if m.jobsSubmitted == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(outcome).Inc()
}

// RecordJobCompleted records a job reaching a terminal status.
func (m *Metrics) RecordJobCompleted(status string, duration time.Duration) {
	if m.jobsCompleted == nil {
		return
	}
	m.jobsCompleted.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordJobRunning adjusts the running jobs gauge.
func (m *Metrics) RecordJobRunning(delta float64) {
	if m.jobsRunning == nil {
		return
	}
	m.jobsRunning.Add(delta)
}

// RecordStep records one step execution attempt.
func (m *Metrics) RecordStep(status string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(status).Inc()
	m.stepDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStepRetry counts an idempotent step retry.
func (m *Metrics) RecordStepRetry() {
	if m.stepRetries == nil {
		return
	}
	m.stepRetries.Inc()
}

// RecordAgentCall records an agent RPC invocation with its duration.
func (m *Metrics) RecordAgentCall(plugin string, duration time.Duration) {
	if m.agentCalls == nil {
		return
	}
	m.agentCalls.WithLabelValues(plugin).Inc()
	m.agentDuration.WithLabelValues(plugin).Observe(duration.Seconds())
}

// RecordAgentError records an agent RPC failure by class.
func (m *Metrics) RecordAgentError(plugin, class string) {
	if m.agentErrors == nil {
		return
	}
	m.agentErrors.WithLabelValues(plugin, class).Inc()
}

// RecordLocksGranted adjusts the granted locks gauge.
func (m *Metrics) RecordLocksGranted(delta float64) {
	if m.locksGranted == nil {
		return
	}
	m.locksGranted.Add(delta)
}

// RecordLockWaiters adjusts the waiting jobs gauge.
func (m *Metrics) RecordLockWaiters(delta float64) {
	if m.lockWaiters == nil {
		return
	}
	m.lockWaiters.Add(delta)
}

// RecordAlertActive adjusts the active alerts gauge for a type.
func (m *Metrics) RecordAlertActive(alertType string, delta float64) {
	if m.alertsActive == nil {
		return
	}
	m.alertsActive.WithLabelValues(alertType).Add(delta)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer(log *Logger) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}
	}()

	return nil
}
