// Package http exposes the lifecycle engine and project administration over
// a JSON API. Handlers translate requests into engine commands and map typed
// errors to status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/controlled-docs/internal/application/service"
	"github.com/garyjia/controlled-docs/internal/application/workflow"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// TemplateStore registers and resolves template bindings
type TemplateStore interface {
	ResolveTemplate(ctx context.Context, templateID string) (*entity.TemplateBinding, error)
	Upsert(ctx context.Context, b *entity.TemplateBinding) error
}

// EscalationLister lists the escalation records of a version
type EscalationLister interface {
	ListByVersion(ctx context.Context, versionID string) ([]*entity.EscalationRecord, error)
}

// HealthFunc reports component health. ok=false answers 503.
type HealthFunc func(ctx context.Context) (status interface{}, ok bool)

// Dependencies are the application components served over HTTP
type Dependencies struct {
	Engine      workflow.Engine
	Policies    service.PolicyService
	Escalations EscalationLister
	Templates   TemplateStore
	Health      HealthFunc
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MaxUploadBytes bounds rendition and RACI uploads
	MaxUploadBytes int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxUploadBytes:  32 << 20,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server with the given dependencies
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultServerConfig().MaxUploadBytes
	}
	gin.SetMode(config.Mode)

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadBytes

	server := &Server{
		config:   config,
		router:   router,
		handlers: NewHandlers(deps, config.MaxUploadBytes, logger),
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		keysAndValues := []interface{}{
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		}
		if actor, ok := c.Get(actorKey); ok {
			keysAndValues = append(keysAndValues, "actor_id", actor.(entity.Actor).ID)
		}

		if status >= http.StatusInternalServerError {
			s.logger.Error("HTTP request", keysAndValues...)
			return
		}
		s.logger.Info("HTTP request", keysAndValues...)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1", h.RequireActor)
	{
		api.POST("/documents", h.CreateDocument)
		api.GET("/documents/:id", h.GetDocument)
		api.GET("/documents/:id/versions", h.ListVersions)
		api.POST("/documents/:id/versions", h.CreateVersion)

		versions := api.Group("/versions/:id")
		versions.GET("", h.GetVersion)
		versions.PUT("/content", h.UpdateContent)
		versions.PUT("/template", h.AssignTemplate)
		versions.PUT("/routing", h.AssignRouting)
		versions.PUT("/rendition", h.AttachRendition)
		versions.GET("/rendition", h.GetRendition)

		versions.POST("/checkout", h.Checkout)
		versions.DELETE("/checkout", h.ReleaseLock)
		versions.POST("/checkout/renew", h.RenewLock)
		versions.POST("/force-unlock", h.ForceUnlock)

		versions.POST("/submit", h.Submit)
		versions.POST("/endorse", h.Endorse)
		versions.POST("/approve", h.Approve)
		versions.POST("/reject", h.Reject)
		versions.POST("/release", h.Release)
		versions.POST("/archive", h.Archive)

		versions.POST("/comments", h.AddComment)
		versions.GET("/comments", h.ListComments)
		versions.GET("/history", h.History)
		versions.GET("/escalations", h.ListEscalations)

		api.GET("/projects/:id/documents", h.ListDocuments)
		api.GET("/projects/:id/policy", h.GetPolicy)
		api.PUT("/projects/:id/policy", h.SavePolicy)
		api.POST("/projects/:id/raci", h.ImportRaci)
		api.GET("/projects/:id/roles", h.Roles)
		api.GET("/projects/:id/compliance", h.Compliance)

		api.GET("/templates/:id", h.GetTemplate)
		api.PUT("/templates/:id", h.PutTemplate)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
