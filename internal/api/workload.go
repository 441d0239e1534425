package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/scaleprobe/internal/engine"
	"github.com/seantiz/scaleprobe/internal/executor"
)

const (
	defaultDelayMS    = 100
	defaultCPUSeconds = 1
)

type delayResponse struct {
	RequestedDelay int    `json:"requested_delay"`
	ActualDelay    int    `json:"actual_delay"`
	ElapsedMS      int64  `json:"elapsed_ms"`
	InstanceID     string `json:"instance_id"`
}

type cpuResponse struct {
	TaskID           string `json:"task_id"`
	SecondsRequested int    `json:"seconds_requested"`
	ActualDurationMS int64  `json:"actual_duration_ms"`
	TimeoutMS        int64  `json:"timeout_ms"`
	Isolation        string `json:"isolation"`
	InstanceID       string `json:"instance_id"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// handleDelay waits for the requested number of milliseconds without
// consuming CPU. actual_delay echoes the delay that was scheduled;
// elapsed_ms is the measured wall time.
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms := parsePathInt(r, "ms", defaultDelayMS)
	if int64(ms) > math.MaxInt64/int64(time.Millisecond) {
		s.writeErrorDetails(w, http.StatusBadRequest, "invalid delay",
			fmt.Sprintf("delay %dms out of range", ms))
		return
	}
	s.clearWriteDeadline(w)

	start := time.Now()
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-r.Context().Done():
		return
	}

	s.writeJSON(w, http.StatusOK, delayResponse{
		RequestedDelay: ms,
		ActualDelay:    ms,
		ElapsedMS:      time.Since(start).Milliseconds(),
		InstanceID:     s.opts.InstanceID,
	})
}

// handleCPU runs a bounded CPU burn and replies once it completes, times
// out, or fails.
func (s *Server) handleCPU(w http.ResponseWriter, r *http.Request) {
	seconds := parsePathInt(r, "seconds", defaultCPUSeconds)
	isolation := r.URL.Query().Get("isolation")
	s.clearWriteDeadline(w)

	res, err := s.runner.RunBounded(r.Context(), engine.Request{
		Seconds:   seconds,
		Isolation: isolation,
	})
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, cpuResponse{
		TaskID:           res.TaskID,
		SecondsRequested: res.Seconds,
		ActualDurationMS: res.ActualDurationMS,
		TimeoutMS:        res.Timeout.Milliseconds(),
		Isolation:        res.Isolation,
		InstanceID:       s.opts.InstanceID,
	})
}

func (s *Server) writeTaskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, executor.ErrUnknownExecutor):
		s.writeErrorDetails(w, http.StatusBadRequest, "unknown isolation mode", err.Error())
	case errors.Is(err, engine.ErrInvalidSeconds):
		s.writeErrorDetails(w, http.StatusBadRequest, "invalid seconds", err.Error())
	case errors.Is(err, engine.ErrTaskTerminated):
		s.writeErrorDetails(w, http.StatusServiceUnavailable, "task terminated", err.Error())
	case errors.Is(err, engine.ErrTaskTimeout):
		s.logger.Warn("cpu task timed out", "error", err, "request_id", requestID(r))
		s.writeErrorDetails(w, http.StatusInternalServerError, "task timed out", err.Error())
	case errors.Is(err, engine.ErrTaskExecution):
		s.logger.Error("cpu task failed", "error", err, "request_id", requestID(r))
		s.writeErrorDetails(w, http.StatusInternalServerError, "task execution failed", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is left to read a reply.
		s.logger.Debug("cpu task abandoned by client", "error", err)
	default:
		s.logger.Error("cpu task", "error", err, "request_id", requestID(r))
		s.writeErrorDetails(w, http.StatusInternalServerError, "task failed", err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeErrorDetails writes a JSON error response with a details field.
func (s *Server) writeErrorDetails(w http.ResponseWriter, status int, message, details string) {
	s.writeJSON(w, status, errorResponse{Error: message, Details: details})
}

// parsePathInt parses a non-negative integer URL parameter. Missing,
// malformed and negative values yield defaultVal.
func parsePathInt(r *http.Request, key string, defaultVal int) int {
	v, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
