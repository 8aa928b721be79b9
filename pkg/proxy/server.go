// Package proxy serves the caching proxy API.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/cache"
	"github.com/pario-ai/cachegate/pkg/config"
	"github.com/pario-ai/cachegate/pkg/metrics"
)

// Authenticator checks server keys presented by callers.
type Authenticator interface {
	Validate(ctx context.Context, secret string) (bool, error)
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics on m and serves gatherer on the
// configured metrics path.
func WithMetrics(m *metrics.Collector, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is the cachegate HTTP API.
type Server struct {
	cfg      *config.Config
	pipeline *Pipeline
	auth     Authenticator
	cache    *cache.Cache
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	limiter  *ipLimiter
	logger   *zap.Logger
	router   chi.Router
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, p *Pipeline, auth Authenticator, c *cache.Cache, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: p,
		auth:     auth,
		cache:    c,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "server"))
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recovery(s.logger))
	r.Use(requestLogger(s.logger, s.metrics))

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil && s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}
		r.Use(s.authenticate)
		r.Post("/proxy", s.handleProxy)
		r.Get("/stats", s.handleStats)
		r.Get("/activity", s.handleActivity)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.limiter != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.limiter.sweep(3 * time.Minute)
				}
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("cachegate listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
