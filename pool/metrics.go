package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	TasksSubmitted prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	LiveWorkers    prometheus.Gauge
	TaskLatency    prometheus.Histogram

	// PoolInits counts pool (re)initializations; a value above one in a
	// process that never called Shutdown means the lazy fork guard fired.
	PoolInits prometheus.Counter
}

// NewMetrics registers pool metrics on the default Prometheus registry.
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewMetricsOn(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewMetricsOn registers pool metrics on the given registerer.
func NewMetricsOn(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks completed successfully",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that failed",
		}),
		LiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "live_workers",
			Help:      "Number of workers in the current pool generation",
		}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_latency_seconds",
			Help:      "Histogram of task execution latency",
			Buckets:   prometheus.DefBuckets,
		}),
		PoolInits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_initializations_total",
			Help:      "Total number of pool initializations, including post-fork rebuilds",
		}),
	}

	reg.MustRegister(
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksFailed,
		m.LiveWorkers,
		m.TaskLatency,
		m.PoolInits,
	)

	return m
}
