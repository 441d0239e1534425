package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/seantiz/scaleprobe/internal/executor"
	"github.com/seantiz/scaleprobe/internal/model"
	"github.com/seantiz/scaleprobe/internal/store"
)

// DefaultGracePeriod is added to the requested seconds when no grace
// period is configured.
const DefaultGracePeriod = 5 * time.Second

// storeTimeout bounds history writes made during cleanup.
const storeTimeout = 5 * time.Second

// Options configures a Runner.
type Options struct {
	// Isolation is the executor used when a request names none.
	Isolation string

	// GracePeriod is added to the requested seconds to form the hard timeout.
	// Zero selects DefaultGracePeriod.
	GracePeriod time.Duration

	// InstanceID is recorded on every task for cross-instance analysis.
	InstanceID string
}

// Request asks for one bounded CPU task.
type Request struct {
	Seconds   int
	Isolation string
}

// Result is the outcome of a task that completed within its deadline.
type Result struct {
	TaskID           string
	Seconds          int
	Isolation        string
	ActualDurationMS int64
	Timeout          time.Duration
}

// Runner executes bounded tasks. Each Runner owns its Active-Task Registry.
type Runner struct {
	executors *executor.Registry
	registry  *Registry
	store     store.Store
	broker    *EventBroker
	logger    *slog.Logger

	isolation  string
	grace      time.Duration
	instanceID string
}

// NewRunner creates a runner. s may be nil to disable task history.
func NewRunner(executors *executor.Registry, s store.Store, logger *slog.Logger, opts Options) *Runner {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	isolation := opts.Isolation
	if isolation == "" {
		isolation = model.IsolationGoroutine
	}

	return &Runner{
		executors:  executors,
		registry:   NewRegistry(),
		store:      s,
		broker:     NewEventBroker(),
		logger:     logger,
		isolation:  isolation,
		grace:      grace,
		instanceID: opts.InstanceID,
	}
}

// Registry returns the runner's Active-Task Registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Broker returns the runner's event broker for progress subscriptions.
func (r *Runner) Broker() *EventBroker {
	return r.broker
}

// Isolation returns the default isolation mode.
func (r *Runner) Isolation() string {
	return r.isolation
}

// GracePeriod returns the configured grace period.
func (r *Runner) GracePeriod() time.Duration {
	return r.grace
}

// Timeout returns the hard timeout for a task of the given seconds.
func (r *Runner) Timeout(seconds int) time.Duration {
	return time.Duration(seconds)*time.Second + r.grace
}

// RunBounded dispatches a CPU burn of req.Seconds to an isolated execution
// context and waits for it, at most req.Seconds plus the grace period.
//
// It returns a Result when the task completes, a *TimeoutError when the
// deadline passes first, an *ExecutionError when the execution context
// fails, and ctx.Err() when the caller gives up. Whatever the outcome, the
// task is unregistered and terminated exactly once before RunBounded returns.
func (r *Runner) RunBounded(ctx context.Context, req Request) (res Result, err error) {
	if req.Seconds < 0 || int64(req.Seconds) > (math.MaxInt64-int64(r.grace))/int64(time.Second) {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidSeconds, req.Seconds)
	}

	isolation := req.Isolation
	if isolation == "" {
		isolation = r.isolation
	}
	exec, err := r.executors.Resolve(isolation)
	if err != nil {
		return Result{}, err
	}

	id := model.NewID()
	timeout := r.Timeout(req.Seconds)

	r.broker.Open(id)
	started := time.Now()
	x, err := exec.Start(ctx, executor.Spec{
		ID:       id,
		Duration: time.Duration(req.Seconds) * time.Second,
		Progress: func(elapsed time.Duration) {
			r.broker.Publish(id, fmt.Sprintf("elapsed_ms=%d", elapsed.Milliseconds()))
		},
	})
	if err != nil {
		r.broker.Close(id)
		tasksTotal.WithLabelValues(isolation, model.StatusFailed).Inc()
		return Result{}, &ExecutionError{TaskID: id, Err: err}
	}

	h := newHandle(id, req.Seconds, isolation, started, x)
	r.registry.Register(h)
	defer func() {
		r.cleanup(h, res, err)
	}()

	r.recordStart(h, timeout)
	r.logger.Debug("task dispatched",
		"task_id", id,
		"seconds", req.Seconds,
		"isolation", isolation,
		"timeout", timeout.String(),
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-x.Done():
		if out.Err != nil {
			if h.terminateRequested() {
				return Result{}, fmt.Errorf("task %s: %w", id, ErrTaskTerminated)
			}
			return Result{}, &ExecutionError{TaskID: id, Err: out.Err}
		}
		return Result{
			TaskID:           id,
			Seconds:          req.Seconds,
			Isolation:        isolation,
			ActualDurationMS: out.Result.DurationMS,
			Timeout:          timeout,
		}, nil
	case <-timer.C:
		return Result{}, &TimeoutError{TaskID: id, Seconds: req.Seconds, Timeout: timeout}
	case <-ctx.Done():
		return Result{}, fmt.Errorf("task %s: %w", id, ctx.Err())
	}
}

// cleanup runs once per dispatched task. Failures here are logged and never
// change the task's outcome.
func (r *Runner) cleanup(h *Handle, res Result, err error) {
	r.registry.Unregister(h)
	if terr := h.Terminate(); terr != nil {
		r.logger.Error("terminate task", "task_id", h.ID, "error", terr)
	}
	r.broker.Close(h.ID)

	elapsed := time.Since(h.StartedAt)
	status := statusFor(err)
	tasksTotal.WithLabelValues(h.Isolation, status).Inc()
	taskDuration.WithLabelValues(h.Isolation).Observe(elapsed.Seconds())

	durationMS := elapsed.Milliseconds()
	if err == nil {
		durationMS = res.ActualDurationMS
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	r.recordFinish(h, store.Finish{
		Status:     status,
		DurationMS: &durationMS,
		Error:      errMsg,
		FinishedAt: time.Now().UTC(),
	})

	r.logger.Debug("task finished",
		"task_id", h.ID,
		"status", status,
		"duration_ms", durationMS,
	)
}

func (r *Runner) recordStart(h *Handle, timeout time.Duration) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	t := &model.Task{
		ID:         h.ID,
		Kind:       model.KindCPU,
		Status:     model.StatusRunning,
		Isolation:  h.Isolation,
		InstanceID: r.instanceID,
		Seconds:    h.Seconds,
		TimeoutMS:  timeout.Milliseconds(),
		CreatedAt:  h.StartedAt.UTC(),
	}
	if err := r.store.CreateTask(ctx, t); err != nil {
		r.logger.Error("failed to record task start", "task_id", h.ID, "error", err)
	}
}

func (r *Runner) recordFinish(h *Handle, f store.Finish) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := r.store.FinishTask(ctx, h.ID, f); err != nil {
		r.logger.Error("failed to record task finish", "task_id", h.ID, "status", f.Status, "error", err)
	}
}

// statusFor maps a RunBounded error to the recorded task status.
func statusFor(err error) string {
	switch {
	case err == nil:
		return model.StatusCompleted
	case errors.Is(err, ErrTaskTimeout):
		return model.StatusTimedOut
	case errors.Is(err, ErrTaskExecution):
		return model.StatusFailed
	case errors.Is(err, ErrTaskTerminated),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return model.StatusTerminated
	default:
		return model.StatusFailed
	}
}
