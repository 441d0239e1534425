package engine

import (
	"sync/atomic"
	"time"

	"github.com/seantiz/scaleprobe/internal/executor"
)

// Handle is one outstanding task: its identity, its requested parameter, and
// the execution context it was dispatched to.
type Handle struct {
	ID        string
	Seconds   int
	Isolation string
	StartedAt time.Time

	exec      executor.Execution
	terminate atomic.Bool
}

// HandleInfo is a copy of a handle's public fields.
type HandleInfo struct {
	ID        string    `json:"id"`
	Seconds   int       `json:"seconds"`
	Isolation string    `json:"isolation"`
	StartedAt time.Time `json:"started_at"`
}

func newHandle(id string, seconds int, isolation string, startedAt time.Time, x executor.Execution) *Handle {
	return &Handle{
		ID:        id,
		Seconds:   seconds,
		Isolation: isolation,
		StartedAt: startedAt,
		exec:      x,
	}
}

// Terminate stops the execution context. Terminating a finished or already
// terminated task is a no-op.
func (h *Handle) Terminate() error {
	h.terminate.Store(true)
	return h.exec.Terminate()
}

// Terminated reports whether the execution context has fully stopped.
func (h *Handle) Terminated() bool {
	select {
	case <-h.exec.Exited():
		return true
	default:
		return false
	}
}

// Exited is closed once the execution context has fully stopped.
func (h *Handle) Exited() <-chan struct{} {
	return h.exec.Exited()
}

// Info returns a snapshot of the handle's public fields.
func (h *Handle) Info() HandleInfo {
	return HandleInfo{
		ID:        h.ID,
		Seconds:   h.Seconds,
		Isolation: h.Isolation,
		StartedAt: h.StartedAt,
	}
}

// terminateRequested reports whether Terminate has been called.
func (h *Handle) terminateRequested() bool {
	return h.terminate.Load()
}
