package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolsentry/toolsentry/internal/metrics"
	"github.com/toolsentry/toolsentry/internal/service"
)

// Server is the gin-routed HTTP transport adapter: the Claude Code hook
// endpoint, the native evaluation endpoint, and the read-only introspection
// endpoints, all dispatching through the same injected Policy Engine.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	logger  *slog.Logger
	version string
}

// NewServer builds the gin router and registers every route. svc must
// already be running; Server does not own its lifecycle.
func NewServer(addr string, svc *service.Service, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware(logger))
	engine.Use(metricsMiddleware(m))

	h := &handlers{svc: svc, metrics: m, logger: logger, version: version}
	engine.POST("/v1/hooks", h.hook)
	engine.POST("/v1/evaluate", h.evaluate)
	engine.GET("/v1/health", h.health)
	engine.GET("/v1/config/rules", h.rules)
	engine.GET("/v1/audit/recent", h.auditRecent)
	engine.GET("/v1/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{
		engine:  engine,
		http:    &http.Server{Addr: addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second},
		logger:  logger,
		version: version,
	}
}

// Start listens and serves until the context is cancelled or ListenAndServe
// returns a non-shutdown error.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Handler exposes the underlying gin.Engine for tests.
func (s *Server) Handler() http.Handler { return s.engine }
