// Package cli wires configuration, logging and services into the kvitto
// command tree.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kvitto/internal/config"
	applog "kvitto/internal/log"
	"kvitto/internal/storage"
)

// SetupLogger builds the process logger and installs it as the slog default.
// Logs go to w so command output on stdout stays machine readable.
func SetupLogger(w io.Writer, verbose bool) *applog.Logger {
	cfg := applog.ConfigFor(verbose)
	cfg.Writer = w
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and runs the base validation.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenJournal opens the fetch journal, or returns nil when it is disabled.
func OpenJournal(logger *applog.Logger, path string) (*storage.Journal, error) {
	if path == "" {
		return nil, nil
	}
	journal, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Fetch journal opened", "path", path)
	return journal, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// GracefulShutdown blocks until ctx is done, then runs cleanup bounded by
// timeout.
func GracefulShutdown(ctx context.Context, logger *applog.Logger, timeout time.Duration, cleanup func(context.Context) error) error {
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if cleanup == nil {
		return nil
	}
	if err := cleanup(shutdownCtx); err != nil {
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		}
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
