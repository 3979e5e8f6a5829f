package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for tickflow components.
type Registry struct {
	// Scheduling Metrics
	JobsSubmitted *prometheus.CounterVec
	JobsRejected  *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsTimedOut  *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	Workers       prometheus.Gauge

	// Host Metrics
	Ticks    prometheus.Counter
	Epoch    prometheus.Gauge
	TickWait prometheus.Histogram
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, DefaultNamespace)
}

func newRegistry(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		JobsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_submitted_total",
				Help:      "Total number of job submissions accepted by a worker",
			},
			[]string{"job"},
		),

		JobsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_rejected_total",
				Help:      "Total number of submissions dropped because a previous run was in flight",
			},
			[]string{"job"},
		),

		JobsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs completed successfully",
			},
			[]string{"job"},
		),

		JobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_failed_total",
				Help:      "Total number of jobs whose body failed",
			},
			[]string{"job"},
		),

		JobsTimedOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_timed_out_total",
				Help:      "Total number of jobs reclaimed by a sweep",
			},
			[]string{"job"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "job_duration_seconds",
				Help:      "Time spent executing job bodies",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"job"},
		),

		Workers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "workers",
				Help:      "Number of registered workers",
			},
		),

		Ticks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "host",
				Name:      "ticks_total",
				Help:      "Total number of host ticks",
			},
		),

		Epoch: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "host",
				Name:      "epoch",
				Help:      "Current cache epoch",
			},
		),

		TickWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "host",
				Name:      "tick_wait_seconds",
				Help:      "Time the tick loop spent waiting on its pacer",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
			},
		),
	}
}

// ObserveJob records the outcome of one finished job. Safe on a nil Registry.
func (r *Registry) ObserveJob(name string, d time.Duration, ok bool) {
	if r == nil {
		return
	}
	r.JobDuration.WithLabelValues(name).Observe(d.Seconds())
	if ok {
		r.JobsCompleted.WithLabelValues(name).Inc()
	} else {
		r.JobsFailed.WithLabelValues(name).Inc()
	}
}
