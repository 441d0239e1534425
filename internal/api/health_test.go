package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	decodeJSON(t, resp.Body, &body)

	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.InstanceID != testInstanceID {
		t.Errorf("instance_id = %q, want %q", body.InstanceID, testInstanceID)
	}
	if body.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", body.PID, os.Getpid())
	}
	if body.ActiveTasks != 0 {
		t.Errorf("active_tasks = %d, want 0", body.ActiveTasks)
	}
	if body.Isolation != "goroutine" {
		t.Errorf("isolation = %q, want goroutine", body.Isolation)
	}
}

func TestRootPage(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), testInstanceID) {
		t.Error("root page does not mention the instance id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make requests to generate metrics.
	if resp, err := http.Get(ts.URL + "/health"); err == nil {
		resp.Body.Close()
	}
	if resp, err := http.Get(ts.URL + "/api/cpu/0"); err == nil {
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, name := range []string{
		"scaleprobe_http_requests_total",
		"scaleprobe_http_request_duration_seconds",
		"scaleprobe_http_requests_in_flight",
		"scaleprobe_active_tasks",
		"scaleprobe_tasks_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
	if !strings.Contains(body, `path="/api/cpu/{seconds}"`) {
		t.Error("request metrics not labelled by route pattern")
	}
}
