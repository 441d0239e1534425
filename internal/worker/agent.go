// Package worker implements the child side of process isolation: it reads a
// single workload request from the server, runs the CPU burn, and streams
// progress and the final result back.
package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/seantiz/scaleprobe/internal/executor/subproc"
	"github.com/seantiz/scaleprobe/internal/workload"
)

// BurnFunc is the workload signature run by the agent.
type BurnFunc func(ctx context.Context, d time.Duration, progress workload.ProgressFunc) (workload.Result, error)

// Agent serves one workload request over a reader/writer pair, normally the
// process's stdin and stdout.
type Agent struct {
	in   io.Reader
	out  io.Writer
	burn BurnFunc

	// mu serializes frames written from the progress callback and the result.
	mu sync.Mutex
}

// New creates an agent that runs workload.Burn.
func New(in io.Reader, out io.Writer) *Agent {
	return &Agent{in: in, out: out, burn: workload.Burn}
}

// NewWithFunc creates an agent that runs fn.
func NewWithFunc(in io.Reader, out io.Writer, fn BurnFunc) *Agent {
	return &Agent{in: in, out: out, burn: fn}
}

// Serve reads one request, executes it, and writes the result. A workload
// failure is reported to the server in the result message; Serve only
// returns an error when the exchange itself fails.
func (a *Agent) Serve(ctx context.Context) error {
	var req subproc.Request
	if err := subproc.ReadMessage(a.in, &req); err != nil {
		a.sendResult(subproc.Response{Error: fmt.Sprintf("read request: %v", err)})
		return fmt.Errorf("read request: %w", err)
	}

	resp := a.execute(ctx, &req)
	return a.sendResult(resp)
}

func (a *Agent) execute(ctx context.Context, req *subproc.Request) subproc.Response {
	if req.DurationMS < 0 {
		return subproc.Response{Error: fmt.Sprintf("invalid duration: %dms", req.DurationMS)}
	}

	d := time.Duration(req.DurationMS) * time.Millisecond
	res, err := a.burn(ctx, d, a.sendProgress)
	if err != nil {
		return subproc.Response{Error: err.Error()}
	}
	return subproc.Response{
		DurationMS: res.DurationMS,
		Iterations: res.Iterations,
	}
}

func (a *Agent) sendProgress(elapsed time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Progress is best effort; the result write reports a broken pipe.
	_ = subproc.WriteMessage(a.out, &subproc.Message{
		Type:      subproc.MsgTypeProgress,
		ElapsedMS: elapsed.Milliseconds(),
	})
}

func (a *Agent) sendResult(resp subproc.Response) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := subproc.WriteMessage(a.out, &subproc.Message{
		Type:     subproc.MsgTypeResult,
		Response: &resp,
	}); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
