package api

import (
	"net/http"

	"github.com/seantiz/scaleprobe/internal/executor"
)

type executorsResponse struct {
	Default   string          `json:"default"`
	Executors []executor.Info `json:"executors"`
}

func (s *Server) handleListExecutors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, executorsResponse{
		Default:   s.runner.Isolation(),
		Executors: s.executors.List(),
	})
}
