package server

import (
	"time"

	"smartmailbox/internal/config"
	"smartmailbox/internal/handlers"
	"smartmailbox/internal/ollama"
	"smartmailbox/internal/pipeline"
	"smartmailbox/internal/storage"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Server represents the application server
type Server struct {
	echo     *echo.Echo
	store    *storage.Store
	pipeline *pipeline.Pipeline
	config   *config.Config
	logger   zerolog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, store *storage.Store, p *pipeline.Pipeline, logger zerolog.Logger) *Server {
	return &Server{
		config:   cfg,
		store:    store,
		pipeline: p,
		logger:   logger,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// proberFactory builds an inference client for the server currently
// named in settings.
func (s *Server) proberFactory() handlers.ProberFactory {
	return func(serverURL string, timeout time.Duration) handlers.BackendProber {
		return ollama.NewClient(serverURL, timeout, s.logger)
	}
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	// API group with /api prefix
	api := s.echo.Group("/api")

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/backend", handlers.BackendHealthHandler(s.store.Settings, s.proberFactory()))

	// Messages
	api.GET("/messages", handlers.ListMessagesHandler(s.store))
	api.GET("/messages/:id", handlers.GetMessageHandler(s.store))
	api.GET("/messages/:id/replies", handlers.MessageRepliesHandler(s.store))
	api.DELETE("/messages/:id", handlers.DeleteMessageHandler(s.store))

	// Tags
	api.GET("/tags", handlers.ListTagsHandler(s.store))
	api.POST("/tags", handlers.CreateTagHandler(s.store))
	api.PUT("/tags/:id", handlers.UpdateTagHandler(s.store))
	api.DELETE("/tags/:id", handlers.DeleteTagHandler(s.store))

	// Settings
	api.GET("/settings", handlers.GetSettingsHandler(s.store))
	api.PUT("/settings", handlers.UpdateSettingsHandler(s.store))

	// Ingest
	api.POST("/ingest", handlers.IngestHandler(s.pipeline))
	api.GET("/ingest/status", handlers.IngestStatusHandler(s.pipeline))
	api.GET("/ingest/status/:id", handlers.IngestFileStatusHandler(s.pipeline))

	// Processing log
	api.GET("/logs", handlers.ProcessingLogHandler(s.store))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}
