package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/scaleprobe/internal/model"
)

var (
	// ErrNotFound is returned when a task is not found.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a task status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TaskStats holds aggregate execution statistics.
type TaskStats struct {
	Total            int            `json:"total"`
	CountByStatus    map[string]int `json:"count_by_status"`
	CountByIsolation map[string]int `json:"count_by_isolation"`
	AvgDurationMS    float64        `json:"avg_duration_ms"`
}

// Finish describes the terminal state recorded for a task.
type Finish struct {
	Status     string
	DurationMS *int64
	Error      string
	FinishedAt time.Time
}

// Store defines the persistence operations for task history.
type Store interface {
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*model.Task, int, error)
	FinishTask(ctx context.Context, id string, f Finish) error
	GetTaskStats(ctx context.Context) (*TaskStats, error)
	Close() error
}
