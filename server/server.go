// Package server is the standalone HTTP shell: it loads config, assembles
// the gateway, binds the listener and handles graceful shutdown.
package server

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

	"github.com/n9te9/graphql-gateway/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

// Run builds the gateway from the config file at configPath and serves it
// until SIGINT/SIGTERM. Any construction failure is returned so the CLI can
// exit non-zero.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load gateway config: %w", err)
	}

	logger := buildLogger(cfg.Logger)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM)
	defer stop()

	sources, stopSources, err := buildSources(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopSources()

	gw, tracingManager, err := buildGateway(ctx, cfg, sources, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: otelhttp.NewHandler(gw, "graphql-gateway"),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", srv.Addr, "endpoints", len(cfg.Endpoints))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down gateway server")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		return fmt.Errorf("failed to shutdown gateway server: %w", err)
	}
	if err := tracingManager.Shutdown(timeoutCtx); err != nil {
		logger.Warn("failed to shutdown span reporters", "error", err)
	}

	logger.Info("gateway server stopped")
	return nil
}

// Init writes a starter config file to path, refusing to overwrite an
// existing one.
func Init(path string) error {
	if path == "" {
		path = "gateway.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

const starterConfig = `server:
  host: 127.0.0.1
  port: 9000

logger:
  format: json
  filter: info

sources:
  - type: graphql
    id: upstream
    config:
      endpoint: ${UPSTREAM_ENDPOINT:http://localhost:4000/graphql}

endpoints:
  - path: /graphql
    from: upstream
    plugins:
      - type: cors
      - type: graphiql
      - type: http_get
`
