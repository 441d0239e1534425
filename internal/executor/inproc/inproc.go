// Package inproc runs workloads in a dedicated goroutine of the serving
// process. Termination cancels the goroutine's context; the workload checks
// it between batches and returns promptly.
package inproc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/seantiz/scaleprobe/internal/executor"
	"github.com/seantiz/scaleprobe/internal/model"
	"github.com/seantiz/scaleprobe/internal/workload"
)

// Name is the isolation mode this executor is registered under.
const Name = model.IsolationGoroutine

// BurnFunc is the workload signature run by the executor.
type BurnFunc func(ctx context.Context, d time.Duration, progress workload.ProgressFunc) (workload.Result, error)

// Executor implements executor.Executor with goroutines.
type Executor struct {
	burn   BurnFunc
	logger *slog.Logger
}

// Compile-time interface satisfaction check.
var _ executor.Executor = (*Executor)(nil)

// New creates an executor running workload.Burn.
func New() *Executor {
	return &Executor{burn: workload.Burn, logger: slog.Default()}
}

// NewWithFunc creates an executor running fn instead of workload.Burn.
func NewWithFunc(fn BurnFunc) *Executor {
	return &Executor{burn: fn, logger: slog.Default()}
}

// WithLogger sets the logger that receives recovered panic stacks.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// Capabilities reports the executor's properties.
func (e *Executor) Capabilities() executor.Capabilities {
	return executor.Capabilities{
		Name:        Name,
		Description: "CPU burn in a dedicated goroutine of the serving process",
		OSProcess:   false,
	}
}

// Start launches the workload in a new goroutine. The execution context is
// detached from ctx so that only Terminate stops it.
func (e *Executor) Start(_ context.Context, spec executor.Spec) (executor.Execution, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	x := &execution{
		cancel: cancel,
		done:   make(chan executor.Outcome, 1),
		exited: make(chan struct{}),
	}

	go func() {
		defer close(x.exited)
		x.done <- e.run(runCtx, spec)
	}()

	return x, nil
}

// run executes the workload, converting a panic into an error outcome.
func (e *Executor) run(ctx context.Context, spec executor.Spec) (out executor.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("workload panic",
				"task_id", spec.ID,
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			out = executor.Outcome{Err: fmt.Errorf("workload panic: %v", p)}
		}
	}()

	res, err := e.burn(ctx, spec.Duration, spec.Progress)
	if err != nil {
		return executor.Outcome{Err: err}
	}
	return executor.Outcome{Result: executor.Result{
		DurationMS: res.DurationMS,
		Iterations: res.Iterations,
	}}
}

type execution struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan executor.Outcome
	exited chan struct{}
}

func (x *execution) Done() <-chan executor.Outcome { return x.done }

func (x *execution) Exited() <-chan struct{} { return x.exited }

func (x *execution) Terminate() error {
	x.once.Do(x.cancel)
	return nil
}
