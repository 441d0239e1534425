package executor

import (
	"context"
	"time"
)

// Executor starts workloads in an execution context isolated from the caller.
type Executor interface {
	// Start dispatches the workload and returns without waiting for it.
	// The returned Execution must eventually be terminated by the caller.
	Start(ctx context.Context, spec Spec) (Execution, error)

	// Capabilities reports what this executor provides.
	Capabilities() Capabilities
}

// Execution is a handle to one dispatched workload.
type Execution interface {
	// Done delivers exactly one Outcome when the workload stops. A workload
	// stopped by Terminate reports an error Outcome. The channel is buffered
	// so an executor never blocks on an absent reader.
	Done() <-chan Outcome

	// Terminate forcibly stops the execution context. It is safe to call
	// more than once and after the workload has finished.
	Terminate() error

	// Exited is closed once the execution context has fully stopped.
	Exited() <-chan struct{}
}

// Spec describes a CPU workload to be executed.
type Spec struct {
	ID       string        `json:"id"`
	Duration time.Duration `json:"duration"`

	// Progress is an optional callback invoked with the elapsed burn time.
	// Executors may call it from any goroutine.
	Progress func(elapsed time.Duration) `json:"-"`
}

// Result holds what the execution context measured.
type Result struct {
	DurationMS int64  `json:"duration_ms"`
	Iterations uint64 `json:"iterations"`
}

// Outcome is the single terminal report of an execution.
type Outcome struct {
	Result Result
	Err    error
}

// Capabilities describes an executor.
type Capabilities struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OSProcess   bool   `json:"os_process"`
}
