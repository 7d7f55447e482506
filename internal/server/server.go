// Package server provides the HTTP API for katachi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/internal/storage"
)

const (
	retrieveTimeout = 60 * time.Second
	maxUploadBytes  = 32 << 20
)

// Server is the HTTP server for the katachi API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	ledger  storage.Ledger // optional
	config  *config.ServerConfig
	logger  *zap.Logger
	limiter *rate.Limiter // nil when unlimited
	server  *http.Server
}

// NewServer creates a server with the given dependencies. ledger may be nil.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	ledger storage.Ledger,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		indexer: idx,
		ledger:  ledger,
		config:  cfg,
		logger:  logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.With(s.rateLimit, middleware.Timeout(retrieveTimeout)).Post("/api/v1/retrieve", s.handleRetrieve)
	r.Get("/api/v1/splits", s.handleListSplits)
	r.Post("/api/v1/splits/{name}/extract", s.handleExtractSplit)
	r.Get("/api/v1/runs", s.handleListRuns)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// rateLimit rejects requests beyond the configured rate with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
