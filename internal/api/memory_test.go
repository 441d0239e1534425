package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMemory(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/memory/16")
	if err != nil {
		t.Fatalf("GET /api/memory/16: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body memoryResponse
	decodeJSON(t, resp.Body, &body)

	if body.AllocatedMB != 16 {
		t.Errorf("allocated_mb = %d, want 16", body.AllocatedMB)
	}
	if body.MemoryAfter.HeapAllocMB <= body.MemoryBefore.HeapAllocMB {
		t.Errorf("heap did not grow: before %v, after %v", body.MemoryBefore.HeapAllocMB, body.MemoryAfter.HeapAllocMB)
	}
	if body.Increase.HeapAllocMB < 8 {
		t.Errorf("increase.heap_alloc_mb = %v, want about 16", body.Increase.HeapAllocMB)
	}
	if body.InstanceID != testInstanceID {
		t.Errorf("instance_id = %q, want %q", body.InstanceID, testInstanceID)
	}
}

func TestMemoryOverLimit(t *testing.T) {
	srv := newTestServer(t, withMaxAllocMB(8))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/memory/9")
	if err != nil {
		t.Fatalf("GET /api/memory/9: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body errorResponse
	decodeJSON(t, resp.Body, &body)
	if body.Error != "memory allocation failed" {
		t.Errorf("error = %q, want %q", body.Error, "memory allocation failed")
	}
	if !strings.Contains(body.Details, "exceeds limit") {
		t.Errorf("details = %q, want it to mention the limit", body.Details)
	}
}

func TestGC(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/gc", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/gc: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body gcResponse
	decodeJSON(t, resp.Body, &body)
	if body.Before.HeapAllocMB <= 0 {
		t.Errorf("before.heap_alloc_mb = %v, want > 0", body.Before.HeapAllocMB)
	}
}

func TestGCDisabled(t *testing.T) {
	srv := newTestServer(t, withForceGC(false))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/gc", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/gc: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body errorResponse
	decodeJSON(t, resp.Body, &body)
	if body.Error == "" || body.Details == "" {
		t.Errorf("error body = %+v, want error and details", body)
	}
}

func TestGCRequiresPost(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/gc")
	if err != nil {
		t.Fatalf("GET /api/gc: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
