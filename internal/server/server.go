// Package server assembles the bridge host: the automation object graph,
// the handle registry, the dispatcher bound to a broadcast hub, and the
// HTTP surface workers connect to.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-test-web/internal/api/middleware"
	"github.com/microsoft/vscode-test-web/internal/automation"
	"github.com/microsoft/vscode-test-web/internal/bridge/dispatch"
	"github.com/microsoft/vscode-test-web/internal/bridge/registry"
	"github.com/microsoft/vscode-test-web/internal/bridge/script"
	"github.com/microsoft/vscode-test-web/internal/bridge/ws"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/config"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/logging"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/monitoring"
)

// Server wraps the HTTP server and bridge components.
type Server struct {
	router     *gin.Engine
	hub        *ws.Hub
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	unbind     func()
}

// New creates a server instance from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing bridge host",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("channel", cfg.Bridge.ChannelPath),
	)

	metrics := monitoring.NewMetrics()

	// Root context: default fixtures plus the automation namespace, so
	// "page", "context", "browser" and "playwright.chromium" all resolve.
	lib := automation.New()
	browser, err := lib.Chromium.Launch()
	if err != nil {
		return nil, err
	}
	browserCtx, err := browser.NewContext()
	if err != nil {
		return nil, err
	}
	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, err
	}
	roots := map[string]any{
		"playwright": lib,
		"browser":    browser,
		"context":    browserCtx,
		"page":       page,
	}

	reg := registry.New()
	eval := script.New(script.Config{Timeout: cfg.Bridge.ScriptTimeout})
	dispatcher := dispatch.New(reg, roots,
		dispatch.WithEvaluator(eval),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
	)

	hub := ws.NewHub(logger, ws.WithMetrics(metrics))
	unbind := dispatch.Bind(hub.Local(), dispatcher)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET(cfg.Bridge.ChannelPath, hub.Handle)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"handles": reg.Size(),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Bridge host initialized")

	return &Server{
		router:     router,
		hub:        hub,
		dispatcher: dispatcher,
		registry:   reg,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		unbind:     unbind,
	}, nil
}

// Router exposes the gin engine, for tests driving the server in-process.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting bridge host", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close detaches the dispatcher and flushes logs.
func (s *Server) Close() error {
	s.logger.Info("Shutting down bridge host")
	if s.unbind != nil {
		s.unbind()
		s.unbind = nil
	}
	s.logger.Sync()
	return nil
}
