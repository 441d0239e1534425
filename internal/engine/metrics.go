package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	activeTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scaleprobe_active_tasks",
			Help: "Number of tasks currently in the active-task registry.",
		},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scaleprobe_tasks_total",
			Help: "Total number of bounded tasks by isolation mode and final status.",
		},
		[]string{"isolation", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scaleprobe_task_duration_seconds",
			Help:    "Wall-clock time from dispatch to cleanup of bounded tasks, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"isolation"},
	)
)

func init() {
	prometheus.MustRegister(activeTasks)
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(taskDuration)
}
