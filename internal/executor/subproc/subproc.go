// Package subproc runs workloads in a separate worker process. The server
// writes one framed Request to the worker's stdin and reads framed progress
// and result messages from its stdout. Termination kills the process.
package subproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/scaleprobe/internal/executor"
	"github.com/seantiz/scaleprobe/internal/model"
)

// Name is the isolation mode this executor is registered under.
const Name = model.IsolationProcess

// Config describes how to launch a worker process.
type Config struct {
	// Path is the worker binary, resolved through PATH if it has no separator.
	Path string
	Args []string

	// Env is appended to the server's environment.
	Env []string
}

// Executor implements executor.Executor with one OS process per workload.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// Compile-time interface satisfaction check.
var _ executor.Executor = (*Executor)(nil)

// New creates a subprocess executor.
func New(cfg Config, logger *slog.Logger) *Executor {
	return &Executor{cfg: cfg, logger: logger}
}

// Verify checks that the worker binary can be found.
func (e *Executor) Verify() error {
	if _, err := exec.LookPath(e.cfg.Path); err != nil {
		return fmt.Errorf("worker binary: %w", err)
	}
	return nil
}

// Capabilities reports the executor's properties.
func (e *Executor) Capabilities() executor.Capabilities {
	return executor.Capabilities{
		Name:        Name,
		Description: "CPU burn in a dedicated worker process (" + e.cfg.Path + ")",
		OSProcess:   true,
	}
}

// Start spawns a worker process and sends it the workload request.
func (e *Executor) Start(_ context.Context, spec executor.Spec) (executor.Execution, error) {
	start := time.Now()

	cmd := exec.Command(e.cfg.Path, e.cfg.Args...)
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	activeWorkers.Inc()

	x := &execution{
		id:     spec.ID,
		cmd:    cmd,
		logger: e.logger,
		done:   make(chan executor.Outcome, 1),
		exited: make(chan struct{}),
	}
	go x.watch(stdout, spec.Progress)

	req := Request{ID: spec.ID, DurationMS: spec.Duration.Milliseconds()}
	if err := WriteMessage(stdin, &req); err != nil {
		x.Terminate()
		<-x.exited
		return nil, fmt.Errorf("send request: %w", err)
	}
	if err := stdin.Close(); err != nil {
		e.logger.Warn("close worker stdin", "task_id", spec.ID, "error", err)
	}

	spawnDuration.Observe(time.Since(start).Seconds())
	return x, nil
}

type execution struct {
	id     string
	cmd    *exec.Cmd
	logger *slog.Logger

	once    sync.Once
	killErr error
	killed  atomic.Bool

	done   chan executor.Outcome
	exited chan struct{}
}

func (x *execution) Done() <-chan executor.Outcome { return x.done }

func (x *execution) Exited() <-chan struct{} { return x.exited }

// Terminate kills the worker process. Killing a worker that already exited
// is not an error.
func (x *execution) Terminate() error {
	x.once.Do(func() {
		x.killed.Store(true)
		err := x.cmd.Process.Kill()
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			x.killErr = fmt.Errorf("kill worker %d: %w", x.cmd.Process.Pid, err)
		}
	})
	return x.killErr
}

// watch reads worker messages until stdout closes, reaps the process, and
// delivers the outcome.
func (x *execution) watch(stdout io.Reader, progress func(time.Duration)) {
	defer close(x.exited)
	defer activeWorkers.Dec()

	var resp *Response
	var readErr error
	for {
		var msg Message
		if err := ReadMessage(stdout, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		switch msg.Type {
		case MsgTypeProgress:
			if progress != nil {
				progress(time.Duration(msg.ElapsedMS) * time.Millisecond)
			}
		case MsgTypeResult:
			resp = msg.Response
		default:
			x.logger.Warn("unknown worker message", "task_id", x.id, "type", msg.Type)
		}
	}
	if readErr != nil {
		// Unblock a worker that is still writing before reaping it.
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := x.cmd.Wait()
	x.done <- x.outcome(resp, readErr, waitErr)
}

func (x *execution) outcome(resp *Response, readErr, waitErr error) executor.Outcome {
	switch {
	case x.killed.Load() && resp == nil:
		workersTotal.WithLabelValues(statusKilled).Inc()
		return executor.Outcome{Err: fmt.Errorf("worker killed: %w", context.Canceled)}
	case resp == nil:
		workersTotal.WithLabelValues(statusFailed).Inc()
		if readErr != nil {
			return executor.Outcome{Err: fmt.Errorf("read worker output: %w", readErr)}
		}
		return executor.Outcome{Err: fmt.Errorf("worker exited without result: %v", waitErr)}
	case resp.Error != "":
		workersTotal.WithLabelValues(statusFailed).Inc()
		return executor.Outcome{Err: errors.New(resp.Error)}
	}

	if waitErr != nil {
		x.logger.Warn("worker exited with error after result", "task_id", x.id, "error", waitErr)
	}
	workersTotal.WithLabelValues(statusCompleted).Inc()
	return executor.Outcome{Result: executor.Result{
		DurationMS: resp.DurationMS,
		Iterations: resp.Iterations,
	}}
}
