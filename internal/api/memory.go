package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/seantiz/scaleprobe/internal/memstat"
)

const defaultAllocMB = 100

type memoryResponse struct {
	AllocatedMB      int              `json:"allocated_mb"`
	AllocationTimeMS int64            `json:"allocation_time_ms"`
	MemoryBefore     memstat.Snapshot `json:"memory_before"`
	MemoryAfter      memstat.Snapshot `json:"memory_after"`
	Increase         memstat.Snapshot `json:"increase"`
	InstanceID       string           `json:"instance_id"`
}

type gcResponse struct {
	Before     memstat.Snapshot `json:"before"`
	After      memstat.Snapshot `json:"after"`
	Freed      memstat.Snapshot `json:"freed"`
	InstanceID string           `json:"instance_id"`
}

// handleMemory allocates the requested megabytes, samples memory while the
// allocation is held, then releases it.
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	mb := parsePathInt(r, "mb", defaultAllocMB)
	ctx := r.Context()
	s.clearWriteDeadline(w)

	before := memstat.Sample(ctx)
	start := time.Now()
	block, err := memstat.Allocate(ctx, mb, s.opts.MaxAllocMB)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("allocate memory", "mb", mb, "error", err, "request_id", requestID(r))
		s.writeErrorDetails(w, http.StatusInternalServerError, "memory allocation failed", err.Error())
		return
	}
	after := memstat.Sample(ctx)
	allocated := block.SizeMB()
	block.Release()

	s.writeJSON(w, http.StatusOK, memoryResponse{
		AllocatedMB:      allocated,
		AllocationTimeMS: elapsed.Milliseconds(),
		MemoryBefore:     before,
		MemoryAfter:      after,
		Increase:         after.Sub(before),
		InstanceID:       s.opts.InstanceID,
	})
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	before := memstat.Sample(ctx)

	if err := memstat.ForceGC(s.opts.ForceGC); err != nil {
		if errors.Is(err, memstat.ErrUnsupported) {
			s.writeErrorDetails(w, http.StatusBadRequest, "garbage collection not available",
				"forced collection is disabled; start with SCALEPROBE_FORCE_GC=true")
			return
		}
		s.logger.Error("force gc", "error", err)
		s.writeErrorDetails(w, http.StatusInternalServerError, "garbage collection failed", err.Error())
		return
	}

	after := memstat.Sample(ctx)
	s.writeJSON(w, http.StatusOK, gcResponse{
		Before:     before,
		After:      after,
		Freed:      before.Sub(after),
		InstanceID: s.opts.InstanceID,
	})
}
