package api

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"time"
)

type healthResponse struct {
	Status      string  `json:"status"`
	InstanceID  string  `json:"instance_id"`
	PID         int     `json:"pid"`
	ActiveTasks int     `json:"active_tasks"`
	UptimeS     float64 `json:"uptime_s"`
	Isolation   string  `json:"isolation"`
	Timestamp   string  `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		InstanceID:  s.opts.InstanceID,
		PID:         os.Getpid(),
		ActiveTasks: s.runner.Registry().Size(),
		UptimeS:     time.Since(s.startedAt).Round(time.Millisecond).Seconds(),
		Isolation:   s.runner.Isolation(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

const rootPage = `<!DOCTYPE html>
<html>
<head><title>scaleprobe</title></head>
<body>
<h1>scaleprobe</h1>
<p>Served by instance <code>%s</code>.</p>
<ul>
<li><a href="/health">/health</a></li>
<li><a href="/api/delay/100">/api/delay/{ms}</a></li>
<li><a href="/api/cpu/1">/api/cpu/{seconds}</a></li>
<li><a href="/api/memory/100">/api/memory/{mb}</a></li>
<li>POST /api/gc</li>
<li><a href="/api/tasks">/api/tasks</a></li>
<li><a href="/metrics">/metrics</a></li>
</ul>
</body>
</html>
`

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, rootPage, html.EscapeString(s.opts.InstanceID)); err != nil {
		s.logger.Error("write root page", "error", err)
	}
}
