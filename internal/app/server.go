package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/tailord/tailord/internal/config"
)

// RunServer wires services, starts the HTTP server, and shuts down cleanly on
// SIGTERM/SIGINT. In-flight generations get a drain window before the process
// exits.
func RunServer(cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	services, err := NewServices(cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	pidFile := filepath.Join(cfg.DataDir, "server.pid")
	if err := writePIDFile(pidFile); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}
	defer os.Remove(pidFile)

	server := &http.Server{
		Addr:    cfg.Bind,
		Handler: services.API.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server listening", "address", cfg.Bind, "data_dir", cfg.DataDir)

	select {
	case <-ctx.Done():
		slog.Info("received signal, shutting down")
	case err := <-errCh:
		return fmt.Errorf("server: listen %s: %w", cfg.Bind, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("drain timeout, forcing shutdown", "error", err)
	}

	return nil
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write pid file: mkdir: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}
