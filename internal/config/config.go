package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort        = "3000"
	defaultDBPath      = "scaleprobe.db"
	defaultGracePeriod = 5 * time.Second
	defaultIsolation   = "goroutine"
	defaultWorkerPath  = "scaleprobe-worker"
	defaultMaxAllocMB  = 4096
	defaultMongoDB     = "scaleprobe"

	envPort        = "PORT"
	envHostname    = "HOSTNAME"
	envDBPath      = "SCALEPROBE_DB_PATH"
	envLogLevel    = "SCALEPROBE_LOG_LEVEL"
	envGracePeriod = "SCALEPROBE_GRACE_PERIOD"
	envIsolation   = "SCALEPROBE_ISOLATION"
	envWorkerPath  = "SCALEPROBE_WORKER_PATH"
	envForceGC     = "SCALEPROBE_FORCE_GC"
	envMaxAllocMB  = "SCALEPROBE_MAX_ALLOC_MB"
	envMongoURI    = "SCALEPROBE_MONGO_URI"
	envMongoDB     = "SCALEPROBE_MONGO_DB"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	InstanceID string
	DBPath     string
	LogLevel   slog.Level

	// MongoURI selects the MongoDB task store instead of SQLite when set.
	MongoURI string
	MongoDB  string

	// GracePeriod is added to the requested CPU seconds to form the hard
	// timeout of a task.
	GracePeriod time.Duration

	// Isolation is the default execution context for CPU tasks.
	Isolation  string
	WorkerPath string

	ForceGC    bool
	MaxAllocMB int
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values fall back to their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:  ":" + defaultPort,
		InstanceID:  hostname(),
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		GracePeriod: defaultGracePeriod,
		Isolation:   defaultIsolation,
		WorkerPath:  defaultWorkerPath,
		ForceGC:     true,
		MaxAllocMB:  defaultMaxAllocMB,
		MongoDB:     defaultMongoDB,
	}

	if v := os.Getenv(envPort); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := os.Getenv(envHostname); v != "" {
		cfg.InstanceID = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envMongoURI); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv(envMongoDB); v != "" {
		cfg.MongoDB = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envGracePeriod); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.GracePeriod = d
		}
	}
	if v := os.Getenv(envIsolation); v != "" {
		cfg.Isolation = strings.ToLower(v)
	}
	if v := os.Getenv(envWorkerPath); v != "" {
		cfg.WorkerPath = v
	}
	if v := os.Getenv(envForceGC); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ForceGC = b
		}
	}
	if v := os.Getenv(envMaxAllocMB); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAllocMB = n
		}
	}

	return cfg
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
