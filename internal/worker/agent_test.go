package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/seantiz/scaleprobe/internal/executor/subproc"
	"github.com/seantiz/scaleprobe/internal/workload"
)

func encodeRequest(t *testing.T, req subproc.Request) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := subproc.WriteMessage(&buf, &req); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	return &buf
}

func readAll(t *testing.T, r io.Reader) []subproc.Message {
	t.Helper()
	var msgs []subproc.Message
	for {
		var m subproc.Message
		err := subproc.ReadMessage(r, &m)
		if errors.Is(err, io.EOF) {
			return msgs
		}
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		msgs = append(msgs, m)
	}
}

func TestServeSuccess(t *testing.T) {
	in := encodeRequest(t, subproc.Request{ID: "t1", DurationMS: 1500})
	var out bytes.Buffer

	var gotDuration time.Duration
	a := NewWithFunc(in, &out, func(_ context.Context, d time.Duration, progress workload.ProgressFunc) (workload.Result, error) {
		gotDuration = d
		progress(time.Second)
		return workload.Result{DurationMS: 1501, Iterations: 7}, nil
	})

	if err := a.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if gotDuration != 1500*time.Millisecond {
		t.Errorf("burn duration = %v, want 1.5s", gotDuration)
	}

	msgs := readAll(t, &out)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Type != subproc.MsgTypeProgress || msgs[0].ElapsedMS != 1000 {
		t.Errorf("first message = %+v, want progress at 1000ms", msgs[0])
	}
	if msgs[1].Type != subproc.MsgTypeResult || msgs[1].Response == nil {
		t.Fatalf("second message = %+v, want result", msgs[1])
	}
	if msgs[1].Response.DurationMS != 1501 || msgs[1].Response.Iterations != 7 {
		t.Errorf("response = %+v", msgs[1].Response)
	}
}

func TestServeWorkloadError(t *testing.T) {
	in := encodeRequest(t, subproc.Request{ID: "t2", DurationMS: 10})
	var out bytes.Buffer

	a := NewWithFunc(in, &out, func(context.Context, time.Duration, workload.ProgressFunc) (workload.Result, error) {
		return workload.Result{}, errors.New("overheated")
	})
	if err := a.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	msgs := readAll(t, &out)
	if len(msgs) != 1 || msgs[0].Response == nil || msgs[0].Response.Error != "overheated" {
		t.Errorf("messages = %+v, want single result with error", msgs)
	}
}

func TestServeNegativeDuration(t *testing.T) {
	in := encodeRequest(t, subproc.Request{ID: "t3", DurationMS: -1})
	var out bytes.Buffer

	called := false
	a := NewWithFunc(in, &out, func(context.Context, time.Duration, workload.ProgressFunc) (workload.Result, error) {
		called = true
		return workload.Result{}, nil
	})
	if err := a.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if called {
		t.Error("burn should not run for a negative duration")
	}

	msgs := readAll(t, &out)
	if len(msgs) != 1 || msgs[0].Response.Error == "" {
		t.Errorf("messages = %+v, want error result", msgs)
	}
}

func TestServeMalformedRequest(t *testing.T) {
	in := bytes.NewBufferString("xx")
	var out bytes.Buffer

	a := New(in, &out)
	if err := a.Serve(context.Background()); err == nil {
		t.Fatal("Serve returned nil for malformed request")
	}

	msgs := readAll(t, &out)
	if len(msgs) != 1 || msgs[0].Response == nil || msgs[0].Response.Error == "" {
		t.Errorf("messages = %+v, want error result", msgs)
	}
}

func TestServeRealBurn(t *testing.T) {
	in := encodeRequest(t, subproc.Request{ID: "t4", DurationMS: 20})
	var out bytes.Buffer

	if err := New(in, &out).Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	msgs := readAll(t, &out)
	last := msgs[len(msgs)-1]
	if last.Response == nil || last.Response.Error != "" || last.Response.DurationMS < 20 {
		t.Errorf("result = %+v, want success >= 20ms", last.Response)
	}
}
