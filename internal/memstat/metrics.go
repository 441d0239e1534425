package memstat

import "github.com/prometheus/client_golang/prometheus"

var (
	allocatedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scaleprobe_memory_allocated_bytes_total",
			Help: "Total bytes allocated by synthetic memory workloads.",
		},
	)

	forcedGCs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scaleprobe_forced_gc_total",
			Help: "Total number of forced garbage collections.",
		},
	)
)

func init() {
	prometheus.MustRegister(allocatedBytes)
	prometheus.MustRegister(forcedGCs)
}
