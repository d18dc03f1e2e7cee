// Package server provides the main server initialization and run logic.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrifttech/rose/internal/api"
	"github.com/bitrifttech/rose/internal/api/handlers"
	"github.com/bitrifttech/rose/internal/config"
	"github.com/bitrifttech/rose/internal/logger"
)

// Config holds the server configuration options.
type Config struct {
	Port    int    // Port to run the server on (0 = use config default)
	Root    string // Workspace root (empty = use config default)
	Version string // Version string to report
}

// LoadConfig loads the application configuration and applies the overrides
// in cfg.
func LoadConfig(cfg Config) (*config.Config, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Port != 0 {
		appCfg.Server.Port = cfg.Port
	}
	if cfg.Root != "" {
		appCfg.Workspace.Root = cfg.Root
	}
	return appCfg, nil
}

// Run starts the server with the given configuration and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	// Set version in handlers
	if cfg.Version != "" {
		handlers.Version = cfg.Version
	}

	appCfg, err := LoadConfig(cfg)
	if err != nil {
		return err
	}

	// Initialize logger
	log := logger.Init(appCfg.Log.Format, appCfg.Log.Level)
	slog.Info("Starting rose", "version", cfg.Version, "mode", appCfg.Server.Mode)

	rt, err := NewRuntime(appCfg, log)
	if err != nil {
		return err
	}

	router := api.NewRouter(appCfg, rt.Services())
	addr := fmt.Sprintf(":%d", appCfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "address", addr, "workspace", rt.Root.Path())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("Server failed", "error", runErr)
	}
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
	defer cancel()

	// Shut the listener first so no new work reaches the runtime.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server forced to shutdown", "error", err)
	}
	if err := rt.Close(shutdownCtx); err != nil {
		slog.Warn("Failed to close runtime", "error", err)
	}

	slog.Info("rose exited")
	return runErr
}

// RunWithSignalHandling starts the server and handles OS signals for graceful shutdown.
func RunWithSignalHandling(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg)
	}()

	// Wait for signal or error
	select {
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig)
		cancel()
		// Wait for server to finish
		return <-errCh
	case err := <-errCh:
		return err
	}
}
