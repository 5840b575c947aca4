package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/config"
	"analytics-sdk/internal/handlers"
)

// Run is the main entry point for the agent
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()

	logging.Info("Starting analytics agent", logging.Field{Key: "version", Value: handlers.Version})

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	app.Start(ctx)

	srv, err := app.RunServer()
	if err != nil {
		app.Cleanup()
		return err
	}
	if err := srv.Start(); err != nil {
		logging.Error("Server failed to start", err)
		app.Cleanup()
		return err
	}
	logging.Info("Listening", logging.Field{Key: "address", Value: srv.Addr().String()})

	// Wait for interrupt signal or a fatal server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	var serveErr error
	select {
	case <-quit:
	case serveErr = <-srv.Errors():
		logging.Error("Server stopped unexpectedly", serveErr)
	}

	logging.Info("Shutting down...")

	// Graceful shutdown: stop accepting requests, then drain the pipeline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", err)
	}
	stop()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Error during app shutdown", logging.Err(err))
	}

	logging.Info("Agent exited")
	return serveErr
}
