package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/scaleprobe/internal/model"
	"github.com/seantiz/scaleprobe/internal/workload"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
	}{
		{"explicit", "/api/delay/100", 100},
		{"default", "/api/delay", defaultDelayMS},
		{"invalid", "/api/delay/abc", defaultDelayMS},
		{"negative", "/api/delay/-5", defaultDelayMS},
		{"zero", "/api/delay/0", 0},
	}

	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			elapsed := time.Since(start)

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			var body delayResponse
			decodeJSON(t, resp.Body, &body)

			if body.RequestedDelay != tt.want || body.ActualDelay != tt.want {
				t.Errorf("requested/actual = %d/%d, want %d", body.RequestedDelay, body.ActualDelay, tt.want)
			}
			if elapsed < time.Duration(tt.want)*time.Millisecond {
				t.Errorf("responded after %v, want >= %dms", elapsed, tt.want)
			}
			if body.ElapsedMS < int64(tt.want) {
				t.Errorf("elapsed_ms = %d, want >= %d", body.ElapsedMS, tt.want)
			}
			if body.InstanceID != testInstanceID {
				t.Errorf("instance_id = %q, want %q", body.InstanceID, testInstanceID)
			}
		})
	}
}

func TestCPU(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cpu/2")
	if err != nil {
		t.Fatalf("GET /api/cpu/2: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body cpuResponse
	decodeJSON(t, resp.Body, &body)

	if body.SecondsRequested != 2 {
		t.Errorf("seconds_requested = %d, want 2", body.SecondsRequested)
	}
	if body.ActualDurationMS != 2000 {
		t.Errorf("actual_duration_ms = %d, want 2000", body.ActualDurationMS)
	}
	if body.TimeoutMS != 3000 {
		t.Errorf("timeout_ms = %d, want 3000", body.TimeoutMS)
	}
	if body.Isolation != "goroutine" {
		t.Errorf("isolation = %q, want goroutine", body.Isolation)
	}
	if !model.ValidID(body.TaskID) {
		t.Errorf("task_id %q is not a valid ID", body.TaskID)
	}
	if n := srv.runner.Registry().Size(); n != 0 {
		t.Errorf("registry size = %d, want 0", n)
	}

	task, err := srv.store.GetTask(context.Background(), body.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != model.StatusCompleted {
		t.Errorf("stored status = %q, want completed", task.Status)
	}
}

func TestCPUDefaultSeconds(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cpu")
	if err != nil {
		t.Fatalf("GET /api/cpu: %v", err)
	}
	defer resp.Body.Close()

	var body cpuResponse
	decodeJSON(t, resp.Body, &body)
	if body.SecondsRequested != defaultCPUSeconds {
		t.Errorf("seconds_requested = %d, want %d", body.SecondsRequested, defaultCPUSeconds)
	}
}

func TestCPURealBurn(t *testing.T) {
	if testing.Short() {
		t.Skip("burns a CPU for a second")
	}
	srv := newTestServer(t, withBurn(workload.Burn))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cpu/1")
	if err != nil {
		t.Fatalf("GET /api/cpu/1: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body cpuResponse
	decodeJSON(t, resp.Body, &body)
	if body.ActualDurationMS < 1000 || body.ActualDurationMS > 2000 {
		t.Errorf("actual_duration_ms = %d, want about 1000", body.ActualDurationMS)
	}
}

func TestCPUTimeout(t *testing.T) {
	srv := newTestServer(t, withBurn(stallBurn), withGrace(100*time.Millisecond))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	start := time.Now()
	resp, err := http.Get(ts.URL + "/api/cpu/0")
	if err != nil {
		t.Fatalf("GET /api/cpu/0: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("responded after %v, before the deadline", elapsed)
	}

	var body errorResponse
	decodeJSON(t, resp.Body, &body)
	if body.Error != "task timed out" {
		t.Errorf("error = %q, want %q", body.Error, "task timed out")
	}
	if body.Details == "" {
		t.Error("expected details")
	}
	if n := srv.runner.Registry().Size(); n != 0 {
		t.Errorf("registry size = %d, want 0", n)
	}
}

func TestCPUExecutionError(t *testing.T) {
	srv := newTestServer(t, withBurn(func(context.Context, time.Duration, workload.ProgressFunc) (workload.Result, error) {
		return workload.Result{}, errors.New("worker crashed")
	}))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cpu/1")
	if err != nil {
		t.Fatalf("GET /api/cpu/1: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body errorResponse
	decodeJSON(t, resp.Body, &body)
	if body.Error != "task execution failed" {
		t.Errorf("error = %q, want %q", body.Error, "task execution failed")
	}
}

func TestCPUUnknownIsolation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cpu/1?isolation=vm")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body errorResponse
	decodeJSON(t, resp.Body, &body)
	if body.Error != "unknown isolation mode" {
		t.Errorf("error = %q, want %q", body.Error, "unknown isolation mode")
	}
}

func TestOutOfRangeParameters(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		error string
	}{
		{"delay", "/api/delay/9223372036855", "invalid delay"},
		{"cpu", "/api/cpu/9223372037", "invalid seconds"},
	}

	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var body errorResponse
			decodeJSON(t, resp.Body, &body)
			if body.Error != tt.error {
				t.Errorf("error = %q, want %q", body.Error, tt.error)
			}
		})
	}
	if n := srv.runner.Registry().Size(); n != 0 {
		t.Errorf("registry size = %d, want 0", n)
	}
}
