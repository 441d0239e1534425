package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry is the set of tasks whose work has been dispatched and not yet
// cleaned up. It is owned by a Runner; each server instance has its own.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*Handle),
	}
}

// Register adds h. Registering the same identity twice is a programming
// error and panics.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[h.ID]; ok {
		panic(fmt.Sprintf("engine: task %s registered twice", h.ID))
	}
	r.handles[h.ID] = h
	activeTasks.Inc()
}

// Unregister removes h if it is still a member.
func (r *Registry) Unregister(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[h.ID]; ok && cur == h {
		delete(r.handles, h.ID)
		activeTasks.Dec()
	}
}

// Size returns the current number of members.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Snapshot returns the members ordered by start time.
func (r *Registry) Snapshot() []HandleInfo {
	r.mu.Lock()
	infos := make([]HandleInfo, 0, len(r.handles))
	for _, h := range r.handles {
		infos = append(infos, h.Info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// DrainAndTerminateAll removes every current member and terminates its
// execution context. Handles registered after the members are collected
// are left alone. It returns the number of drained tasks and the joined
// termination errors.
func (r *Registry) DrainAndTerminateAll() (int, error) {
	r.mu.Lock()
	drained := make([]*Handle, 0, len(r.handles))
	for id, h := range r.handles {
		drained = append(drained, h)
		delete(r.handles, id)
	}
	activeTasks.Sub(float64(len(drained)))
	r.mu.Unlock()

	var errs []error
	for _, h := range drained {
		if err := h.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate task %s: %w", h.ID, err))
		}
	}
	return len(drained), errors.Join(errs...)
}
