// Package server exposes dataset upload, classification and chart
// validation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/store"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config holds configuration for the API server.
type Config struct {
	Addr           string
	Store          *store.Store
	Options        analysis.Options
	MaxUploadBytes int64
	PreviewRows    int
	// SweepEvery is the store janitor period; 0 disables the janitor.
	SweepEvery time.Duration
	Logger     *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	store  *store.Store
	logger *slog.Logger
}

// New creates a server. A nil store gets an unbounded one.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Store == nil {
		cfg.Store = store.New(store.Options{Logger: cfg.Logger})
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 16 << 20
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 5
	}
	if cfg.Options.DateThreshold <= 0 {
		cfg.Options = analysis.DefaultOptions()
	}
	cfg.Store.OnEvict = func(reason string) { evictionsTotal.WithLabelValues(reason).Inc() }
	return &Server{cfg: cfg, store: cfg.Store, logger: cfg.Logger}
}

// Handler builds the router with all API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.SetHeader("Access-Control-Allow-Origin", "*"),
		s.instrument,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.upload)
		r.Get("/data/{id}", s.data)
		r.Get("/stats/{id}", s.stats)
		r.Post("/visualize", s.visualize)
		r.Post("/export", s.export)
		r.Get("/datasets", s.datasets)
		r.Delete("/datasets/{id}", s.deleteDataset)
	})
	return r
}

// instrument logs each request and records its latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		requestDuration.WithLabelValues(r.Method, route, fmt.Sprint(status)).Observe(elapsed.Seconds())
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Serve runs the server and the store janitor until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting API server", "addr", "http://"+ln.Addr().String())
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.SweepEvery > 0 {
		eg.Go(func() error {
			t := time.NewTicker(s.cfg.SweepEvery)
			defer t.Stop()
			for {
				select {
				case <-egctx.Done():
					return nil
				case <-t.C:
					if n := s.store.Sweep(); n > 0 {
						s.logger.Debug("store sweep", "evicted", n)
					}
					datasetsStored.Set(float64(s.store.Len()))
				}
			}
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
