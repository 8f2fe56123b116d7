// Package main runs the evidentia HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/cache"
	"github.com/evidentia-hq/evidentia/internal/config"
	"github.com/evidentia-hq/evidentia/internal/httpapi"
	"github.com/evidentia-hq/evidentia/internal/logging"
	"github.com/evidentia-hq/evidentia/internal/modelclient"
	"github.com/evidentia-hq/evidentia/internal/pipeline"
	"github.com/evidentia-hq/evidentia/internal/stage"
	"github.com/evidentia-hq/evidentia/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.App.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := telemetry.Init(ctx, cfg.Trace.OTLPEndpoint, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	client, err := modelclient.New(modelclient.Config{
		APIKey:          cfg.Model.APIKey,
		Endpoint:        cfg.Model.Endpoint,
		Model:           cfg.Model.Model,
		ReasoningEffort: cfg.Model.Effort,
		Timeout:         cfg.Model.Timeout(),
	})
	if err != nil {
		logger.Fatal("model_client_init_failed", zap.Error(err))
	}

	store, err := cache.NewSQLiteStore(cfg.Cache.DBPath)
	if err != nil {
		logger.Fatal("cache_init_failed", zap.String("path", cfg.Cache.DBPath), zap.Error(err))
	}
	defer store.Close()

	executor := stage.NewExecutor(client, logger)
	coordinator := pipeline.NewCoordinator(executor, store, logger)
	handler := httpapi.NewServer(coordinator, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server_listening",
			zap.String("addr", srv.Addr),
			zap.String("model", client.ModelName()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_incomplete", zap.Error(err))
	}
	coordinator.WaitPersist()
	logger.Info("shutdown_complete")
}
