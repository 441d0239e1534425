package subproc

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for worker exit status.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusKilled    = "killed"
)

var (
	spawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scaleprobe_subproc_spawn_seconds",
			Help:    "Duration from exec to the request being written to the worker, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scaleprobe_subproc_active_workers",
			Help: "Number of currently running worker processes.",
		},
	)

	workersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scaleprobe_subproc_workers_total",
			Help: "Total number of worker processes by exit status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(spawnDuration)
	prometheus.MustRegister(activeWorkers)
	prometheus.MustRegister(workersTotal)

	// Pre-initialize label combinations so they appear in /metrics with value 0.
	for _, s := range []string{statusCompleted, statusFailed, statusKilled} {
		workersTotal.WithLabelValues(s)
	}
}
