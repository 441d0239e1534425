package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/seantiz/scaleprobe/internal/api"
	"github.com/seantiz/scaleprobe/internal/config"
	"github.com/seantiz/scaleprobe/internal/engine"
	"github.com/seantiz/scaleprobe/internal/executor"
	"github.com/seantiz/scaleprobe/internal/executor/inproc"
	"github.com/seantiz/scaleprobe/internal/executor/subproc"
	"github.com/seantiz/scaleprobe/internal/model"
	"github.com/seantiz/scaleprobe/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("scaleprobe: starting",
		"listen_addr", cfg.ListenAddr,
		"instance_id", cfg.InstanceID,
		"db_path", cfg.DBPath,
		"isolation", cfg.Isolation,
		"grace_period", cfg.GracePeriod.String(),
	)

	db, err := openStore(cfg, logger)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	execs := executor.NewRegistry()
	execs.Register(inproc.Name, inproc.New().WithLogger(logger))

	worker := subproc.New(subproc.Config{Path: workerPath(cfg.WorkerPath, logger)}, logger)
	execs.Register(subproc.Name, worker)

	isolation := cfg.Isolation
	if err := worker.Verify(); err != nil {
		logger.Warn("process isolation unavailable", "error", err)
		if isolation == model.IsolationProcess {
			isolation = model.IsolationGoroutine
		}
	}
	if _, err := execs.Resolve(isolation); err != nil {
		logger.Warn("unknown default isolation, using goroutine", "isolation", isolation)
		isolation = model.IsolationGoroutine
	}

	runner := engine.NewRunner(execs, db, logger, engine.Options{
		Isolation:   isolation,
		GracePeriod: cfg.GracePeriod,
		InstanceID:  cfg.InstanceID,
	})

	srv := api.NewServer(cfg.ListenAddr, db, execs, runner, api.Options{
		InstanceID: cfg.InstanceID,
		ForceGC:    cfg.ForceGC,
		MaxAllocMB: cfg.MaxAllocMB,
	}, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.MongoURI == "" {
		return store.NewSQLiteStore(cfg.DBPath)
	}
	logger.Info("using mongo task store", "database", cfg.MongoDB)
	return store.NewMongoStore(context.Background(), cfg.MongoURI, cfg.MongoDB)
}

// workerPath resolves a bare worker name to a binary installed next to this
// executable, if there is one.
func workerPath(configured string, logger *slog.Logger) string {
	if filepath.Base(configured) != configured {
		return configured
	}
	exe, err := os.Executable()
	if err != nil {
		return configured
	}
	sibling := filepath.Join(filepath.Dir(exe), configured)
	if _, err := os.Stat(sibling); err == nil {
		logger.Debug("using worker next to executable", "path", sibling)
		return sibling
	}
	return configured
}
