package model

import "time"

// Task status constants.
const (
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTimedOut   = "timed_out"
	StatusTerminated = "terminated"
)

// Isolation mode constants. An isolation mode names the kind of execution
// context a CPU task is dispatched to.
const (
	IsolationGoroutine = "goroutine"
	IsolationProcess   = "process"
)

// Task kind constants.
const (
	KindCPU = "cpu"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusRunning: {
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusTimedOut:   true,
		StatusTerminated: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final task status.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusTerminated:
		return true
	}
	return false
}

// Task is the persisted record of one bounded task run.
type Task struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Isolation  string     `json:"isolation"`
	InstanceID string     `json:"instance_id"`
	Seconds    int        `json:"seconds"`
	TimeoutMS  int64      `json:"timeout_ms"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
