package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitrifttech/rose/internal/api/handlers"
	"github.com/bitrifttech/rose/internal/config"
	"github.com/bitrifttech/rose/internal/files"
	"github.com/bitrifttech/rose/internal/logstream"
	"github.com/bitrifttech/rose/internal/process"
	"github.com/bitrifttech/rose/internal/snapshot"
	"github.com/bitrifttech/rose/internal/terminal"
)

// Services are the workspace components the gateway exposes.
type Services struct {
	Files      *files.Store
	Session    *terminal.Session
	Runner     *terminal.Runner
	Supervisor *process.Supervisor
	Broker     *logstream.LogBroker
	Workspace  snapshot.Target
	Versions   *snapshot.Manager
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, svc Services) *gin.Engine {
	// Set Gin mode
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.Mode = cfg.Server.Mode

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/version", handlers.GetVersion)

	// Initialize handlers
	fileHandler := handlers.NewFileHandler(svc.Files)
	termHandler := handlers.NewTerminalHandler(svc.Session, svc.Runner)
	serverHandler := handlers.NewServerHandler(svc.Supervisor, svc.Broker)
	appHandler := handlers.NewAppHandler(svc.Workspace, cfg.Server.MaxUploadMB<<20)
	versionHandler := handlers.NewVersionHandler(svc.Versions)

	// File endpoints
	router.GET("/files/*path", fileHandler.Get)
	router.POST("/files/*path", fileHandler.Create)
	router.PUT("/files/*path", fileHandler.Update)
	router.DELETE("/files/*path", fileHandler.Delete)
	router.POST("/move", fileHandler.Move)
	router.DELETE("/delete", fileHandler.Remove)

	// Terminal endpoints
	router.POST("/execute", termHandler.Execute)
	router.POST("/terminal/start", termHandler.Start)
	router.POST("/terminal/stop", termHandler.Stop)
	router.GET("/terminal/status", termHandler.Status)
	router.GET("/terminal/ws", termHandler.Connect)

	// Application process endpoints
	router.POST("/server/start", serverHandler.Start)
	router.POST("/server/stop", serverHandler.Stop)
	router.GET("/server/status", serverHandler.Status)
	router.GET("/server/logs", serverHandler.Logs)

	// Whole-workspace transfer
	router.POST("/upload/app", appHandler.Upload)
	router.GET("/download/app", appHandler.Download)

	// Project versions
	projects := router.Group("/projects/:id/versions")
	{
		projects.GET("", versionHandler.List)
		projects.POST("", versionHandler.Save)
		projects.GET("/:version", versionHandler.Get)
		projects.GET("/:version/archive", versionHandler.Archive)
		projects.POST("/:version/restore", versionHandler.Restore)
	}

	slog.Info("API router initialized", "mode", cfg.Server.Mode)
	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		slog.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
