// testserver starts a scaleprobe server with extra stub executors for
// exercising timeout and failure paths from a load generator.
// Usage: go run ./cmd/testserver
//
// Besides the real "goroutine" executor it registers:
//
//	stall  never finishes, so every request times out after seconds + grace
//	flaky  fails every third task with an execution error
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/seantiz/scaleprobe/internal/api"
	"github.com/seantiz/scaleprobe/internal/engine"
	"github.com/seantiz/scaleprobe/internal/executor"
	"github.com/seantiz/scaleprobe/internal/executor/inproc"
	"github.com/seantiz/scaleprobe/internal/store"
	"github.com/seantiz/scaleprobe/internal/workload"
)

const testGracePeriod = 500 * time.Millisecond

func stall(ctx context.Context, _ time.Duration, _ workload.ProgressFunc) (workload.Result, error) {
	<-ctx.Done()
	return workload.Result{}, ctx.Err()
}

func flaky() inproc.BurnFunc {
	var calls atomic.Int64
	return func(ctx context.Context, d time.Duration, progress workload.ProgressFunc) (workload.Result, error) {
		if calls.Add(1)%3 == 0 {
			return workload.Result{}, errors.New("injected failure")
		}
		return workload.Burn(ctx, d, progress)
	}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	execs := executor.NewRegistry()
	execs.Register(inproc.Name, inproc.New().WithLogger(logger))
	execs.Register("stall", inproc.NewWithFunc(stall).WithLogger(logger))
	execs.Register("flaky", inproc.NewWithFunc(flaky()).WithLogger(logger))
	runner := engine.NewRunner(execs, db, logger, engine.Options{
		GracePeriod: testGracePeriod,
		InstanceID:  "testserver",
	})
	srv := api.NewServer(addr, db, execs, runner, api.Options{
		InstanceID: "testserver",
		ForceGC:    true,
		MaxAllocMB: 512,
	}, logger)

	logger.Info("testserver: starting", "addr", addr, "grace_period", testGracePeriod.String())
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
