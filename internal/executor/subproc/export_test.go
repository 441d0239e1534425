package subproc

import "github.com/prometheus/client_golang/prometheus"

// ActiveWorkersGauge exposes the worker gauge to external tests.
func ActiveWorkersGauge() prometheus.Gauge { return activeWorkers }
