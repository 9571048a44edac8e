// Command nexus-server serves the Fashion AI Nexus web application.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/fashion-nexus/internal/app"
	"github.com/and161185/fashion-nexus/internal/config"
	"github.com/and161185/fashion-nexus/internal/store/images"
	"github.com/and161185/fashion-nexus/internal/web"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, builds the backend and serves HTTP until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default ./nexus.yaml if present)")
	dev := flag.Bool("dev", false, "development mode: verbose logs, ephemeral signing key allowed")
	flag.Parse()

	if *dev {
		os.Setenv("NEXUS_SERVER_DEV", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not configured yet
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	var logger *zap.Logger
	if cfg.Server.Dev {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
		gin.SetMode(gin.ReleaseMode)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("backend", zap.Error(err))
	}
	defer backend.Close()

	imgOpts := images.DefaultOptions()
	imgOpts.UploadConcurrency = cfg.Limits.UploadConcurrency

	reg := app.NewRegistry(backend.Platform, app.Options{
		IdleTTL: cfg.Viewers.IdleTTL,
		AnonTTL: cfg.Viewers.AnonTTL,
		Images:  imgOpts,
	}, logger)
	defer reg.Close()
	go reg.Run(ctx, cfg.Viewers.SweepInterval)

	srv, err := web.New(reg, web.Options{
		Secret:            backend.SignKey,
		SecureCookies:     !cfg.Server.Dev,
		RequestsPerSecond: cfg.Limits.RequestsPerSecond,
		Burst:             cfg.Limits.Burst,
		Objects:           backend.Objects,
		MaxFileSize:       imgOpts.MaxFileSize,
	}, logger)
	if err != nil {
		logger.Fatal("web", zap.Error(err))
	}
	go srv.Run(ctx, cfg.Viewers.SweepInterval)

	hs := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("baseURL", cfg.Server.BaseURL))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forced shutdown", zap.Error(err))
			_ = hs.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			reg.Close()
			backend.Close()
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
