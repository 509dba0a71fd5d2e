package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/havensocial/haven/internal/auth"
	"github.com/havensocial/haven/internal/config"
	"github.com/havensocial/haven/internal/gateway"
	"github.com/havensocial/haven/internal/observability"
	"github.com/havensocial/haven/internal/store"
)

// runServe wires the configured collaborators together and serves until a
// termination signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger := observability.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	_, shutdownTracer := observability.NewTracer(cfg.Tracing)
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	messages, calls, closeStore, err := openStores(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	verifier := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	gw := gateway.New(cfg.Gateway, logger, observability.NewMetrics(), verifier, messages, calls)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			"addr", cfg.Server.Addr(),
			"storage", cfg.Storage.Backend,
			"version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// openStores builds the message and call stores for the configured backend.
// The returned closer is a no-op for the memory backend.
func openStores(cfg config.StorageConfig) (store.MessageStore, store.CallStore, func(), error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryMessageStore(), store.NewMemoryCallStore(), func() {}, nil
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := store.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
