package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/vncmcp/internal/managed"
	"github.com/seantiz/vncmcp/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
)

// Server is the diagnostics HTTP server: health, metrics, profiling, the
// current run's runtime state and the run journal.
type Server struct {
	router *chi.Mux
	store  store.Store
	logger *slog.Logger
	addr   string

	ec    atomic.Pointer[managed.ExecutionContext]
	bound chan net.Addr
}

// NewServer creates the diagnostics server. st may be nil, in which case the
// journal routes answer 503.
func NewServer(addr string, st store.Store, logger *slog.Logger) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		store:  st,
		logger: logger,
		addr:   addr,
		bound:  make(chan net.Addr, 1),
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())
	s.router.Mount("/debug", middleware.Profiler())

	s.router.Get("/v1/runtime", s.handleRuntime)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Bound delivers the listening address once Run has bound it.
func (s *Server) Bound() <-chan net.Addr {
	return s.bound
}

// Run serves until ctx is done, then shuts down gracefully. The execution
// context carried by ctx, if any, backs /v1/runtime.
func (s *Server) Run(ctx context.Context) error {
	if ec := managed.FromContext(ctx); ec != nil {
		s.ec.Store(ec)
		defer s.ec.Store(nil)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostics listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.bound <- ln.Addr()

	select {
	case <-ctx.Done():
		s.logger.Info("diagnostics shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("diagnostics stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
