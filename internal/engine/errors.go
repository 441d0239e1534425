package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTaskTimeout matches errors for tasks that exceeded their deadline.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrTaskExecution matches errors raised inside the execution context.
	ErrTaskExecution = errors.New("task execution failed")

	// ErrTaskTerminated is returned when a task was terminated by a registry
	// drain (normally during shutdown) before it reported a result.
	ErrTaskTerminated = errors.New("task terminated")

	// ErrInvalidSeconds is returned for a negative workload parameter or one
	// whose timeout does not fit in a time.Duration.
	ErrInvalidSeconds = errors.New("seconds out of range")
)

// TimeoutError reports a task whose hard timeout elapsed first.
type TimeoutError struct {
	TaskID  string
	Seconds int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s (requested %ds)", e.TaskID, e.Timeout, e.Seconds)
}

// Is reports whether target is ErrTaskTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTaskTimeout
}

// ExecutionError wraps a failure raised by the execution context.
type ExecutionError struct {
	TaskID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s execution failed: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTaskExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrTaskExecution
}
