// Package api exposes the bias detection engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/engine"
)

const shutdownTimeout = 5 * time.Second

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the fairlens HTTP API.
type Server struct {
	addr   string
	engine *engine.Engine
	caches *cache.Manager
	logger *zap.Logger
	router *gin.Engine
}

// New creates a Server listening on addr once started.
func New(addr string, eng *engine.Engine, caches *cache.Manager, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		engine: eng,
		caches: caches,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes(r)
	s.router = r
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/analyses/:id", s.handleGetAnalysis)
		v1.POST("/reports", s.handleCreateReport)
		v1.GET("/reports/:id", s.handleGetReport)
		v1.GET("/dashboard", s.handleDashboard)
		v1.GET("/thresholds", s.handleGetPolicy)
		v1.PUT("/thresholds", s.handleUpdateThresholds)
		v1.PUT("/weights", s.handleUpdateWeights)
		v1.POST("/explain", s.handleExplain)
		v1.POST("/fairness", s.handleFairness)

		c := v1.Group("/cache")
		{
			c.GET("/stats", s.handleCacheStats)
			c.DELETE("/demographics", s.handleInvalidateDemographics)
			c.DELETE("/analyses/:id", s.handleInvalidateSubject)
		}
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("fairlens api listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("fairlens api shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
