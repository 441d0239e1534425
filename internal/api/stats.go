package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByIsolation   map[string]int `json:"by_isolation"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	ActiveTasks   int            `json:"active_tasks"`
	InstanceID    string         `json:"instance_id"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetTaskStats(r.Context())
	if err != nil {
		s.logger.Error("get task stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByIsolation:   stats.CountByIsolation,
		AvgDurationMS: stats.AvgDurationMS,
		ActiveTasks:   s.runner.Registry().Size(),
		InstanceID:    s.opts.InstanceID,
	})
}
