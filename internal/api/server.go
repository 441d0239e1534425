package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/scaleprobe/internal/engine"
	"github.com/seantiz/scaleprobe/internal/executor"
	"github.com/seantiz/scaleprobe/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Options holds the per-instance settings the handlers report and enforce.
type Options struct {
	InstanceID string
	ForceGC    bool
	MaxAllocMB int
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router    *chi.Mux
	store     store.Store
	executors *executor.Registry
	runner    *engine.Runner
	logger    *slog.Logger
	addr      string
	opts      Options
	startedAt time.Time
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, s store.Store, execs *executor.Registry, runner *engine.Runner, opts Options, logger *slog.Logger) *Server {
	srv := &Server{
		router:    chi.NewRouter(),
		store:     s,
		executors: execs,
		runner:    runner,
		logger:    logger,
		addr:      addr,
		opts:      opts,
		startedAt: time.Now(),
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

func (s *Server) routes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/delay", s.handleDelay)
		r.Get("/delay/{ms}", s.handleDelay)
		r.Get("/cpu", s.handleCPU)
		r.Get("/cpu/{seconds}", s.handleCPU)
		r.Get("/memory", s.handleMemory)
		r.Get("/memory/{mb}", s.handleMemory)
		r.Post("/gc", s.handleGC)

		r.Get("/stats", s.handleGetStats)
		r.Get("/executors", s.handleListExecutors)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Get("/active", s.handleActiveTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Get("/{id}/events", s.handleStreamEvents)
		})
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// On shutdown every active task is terminated before the listener drains.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr, "instance_id", s.opts.InstanceID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	s.drainTasks()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// drainTasks terminates every task in the active-task registry.
func (s *Server) drainTasks() int {
	n, err := s.runner.Registry().DrainAndTerminateAll()
	if err != nil {
		s.logger.Error("terminate active tasks", "error", err)
	}
	s.logger.Info("active tasks drained", "count", n)
	return n
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r),
		)
	})
}

// clearWriteDeadline lifts the server write timeout for handlers whose
// response time is chosen by the caller.
func (s *Server) clearWriteDeadline(w http.ResponseWriter) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline", "error", err)
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
