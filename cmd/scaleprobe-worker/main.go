// Command scaleprobe-worker runs one CPU burn on behalf of the scaleprobe
// server. It reads a framed request on stdin and writes framed progress and
// result messages on stdout. The server starts one worker per task and kills
// it when the task is cleaned up.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seantiz/scaleprobe/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stdout carries the protocol; diagnostics go to stderr.
	log.SetOutput(os.Stderr)

	if err := worker.New(os.Stdin, os.Stdout).Serve(ctx); err != nil {
		log.Fatalf("scaleprobe-worker: %v", err)
	}
}
