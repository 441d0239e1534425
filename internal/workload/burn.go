// Package workload holds the statically defined synthetic workloads that
// executors run. Workloads are plain functions parameterized by input; they
// never build or evaluate code at runtime.
package workload

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// batchSize is the number of arithmetic iterations between clock and
// cancellation checks.
const batchSize = 10_000

// ProgressInterval is how often Burn reports progress.
const ProgressInterval = time.Second

// ProgressFunc receives the elapsed burn time.
type ProgressFunc func(elapsed time.Duration)

// Result is the measured outcome of a burn.
type Result struct {
	DurationMS int64  `json:"duration_ms"`
	Iterations uint64 `json:"iterations"`
}

// Burn keeps one CPU busy for d, checking ctx between batches. It returns
// ctx.Err() if ctx is cancelled before d elapses. progress may be nil.
func Burn(ctx context.Context, d time.Duration, progress ProgressFunc) (Result, error) {
	start := time.Now()
	nextReport := start.Add(ProgressInterval)

	var iterations uint64
	acc := 0.0
	for {
		for i := 0; i < batchSize; i++ {
			acc += math.Sqrt(float64(iterations+uint64(i))) + math.Sin(acc)
		}
		iterations += batchSize

		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		now := time.Now()
		elapsed := now.Sub(start)
		if elapsed >= d {
			sink.Store(math.Float64bits(acc))
			return Result{DurationMS: elapsed.Milliseconds(), Iterations: iterations}, nil
		}
		if progress != nil && !now.Before(nextReport) {
			progress(elapsed)
			nextReport = nextReport.Add(ProgressInterval)
		}
	}
}

// sink keeps the accumulator observable so the loop is not optimized away.
// Concurrent burns share it.
var sink atomic.Uint64
