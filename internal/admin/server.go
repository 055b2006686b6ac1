// Package admin serves the agent's out-of-band HTTP surface: health,
// session status, and prometheus metrics. It reads only published
// snapshots and never touches protocol state.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/oranlabs/ricagent/internal/agent"
	"github.com/oranlabs/ricagent/internal/observability"
)

// StatusSource provides point-in-time session snapshots.
type StatusSource interface {
	Snapshot() agent.Status
}

// Server is the admin HTTP server.
type Server struct {
	addr      string
	log       zerolog.Logger
	src       StatusSource
	engine    *gin.Engine
	http      *http.Server
	startedAt time.Time
}

// New builds the server and registers its routes. Call Start to serve.
func New(addr string, src StatusSource, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:      addr,
		log:       log.With().Str("component", "admin").Logger(),
		src:       src,
		engine:    gin.New(),
		startedAt: time.Now(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(observability.RequestLogger(s.log))
	s.engine.Use(observability.RequestMetrics())
	s.registerRoutes()
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": "ricagent",
		})
	})

	s.engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.src.Snapshot())
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	observability.RegisterMetrics()
	s.log.Info().Str("addr", s.addr).Msg("admin server listening")
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("admin server failed")
		}
	}()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
