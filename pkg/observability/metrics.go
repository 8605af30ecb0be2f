package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Metrics holds the orchestrator's Prometheus collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	stepsStarted *prometheus.CounterVec
	stepsEnded   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	stepsRunning prometheus.Gauge
	persists     prometheus.Counter
	runsFinished *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "silvan_steps_started_total",
				Help: "Total number of step executions started",
			},
			[]string{"step"},
		),
		stepsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "silvan_steps_finished_total",
				Help: "Total number of step executions finished, by outcome",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "silvan_step_duration_seconds",
				Help:    "Duration of step executions",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
			[]string{"step"},
		),
		stepsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "silvan_steps_running",
			Help: "Number of steps currently executing in this process",
		}),
		persists: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "silvan_state_persists_total",
			Help: "Total number of durable run state writes",
		}),
		runsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "silvan_runs_finished_total",
				Help: "Total number of runs that reached a terminal status",
			},
			[]string{"status"},
		),
	}
	m.registry.MustRegister(m.stepsStarted, m.stepsEnded, m.stepDuration, m.stepsRunning, m.persists, m.runsFinished)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns step runner callbacks that record into the collectors.
func (m *Metrics) Hooks() domain.StepHooks {
	return domain.StepHooks{
		OnStepStart: func(runID, stepID string) {
			m.stepsStarted.WithLabelValues(stepID).Inc()
			m.stepsRunning.Inc()
		},
		OnStepEnd: func(runID, stepID string, status domain.StepStatus, elapsed time.Duration) {
			m.stepsRunning.Dec()
			m.stepsEnded.WithLabelValues(stepID, string(status)).Inc()
			m.stepDuration.WithLabelValues(stepID).Observe(elapsed.Seconds())
		},
		OnPersist: func(runID string) {
			m.persists.Inc()
		},
		OnFinish: func(runID string, status domain.RunStatus) {
			m.runsFinished.WithLabelValues(string(status)).Inc()
		},
	}
}
