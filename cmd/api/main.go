// Package main implements the CarFinder API server.
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

	"github.com/WessleyAI/carfinder/engine/app"
	"github.com/WessleyAI/carfinder/pkg/config"
	"github.com/WessleyAI/carfinder/pkg/mid"
	"github.com/WessleyAI/carfinder/pkg/natsutil"
)

const (
	maxBodyBytes = 1 << 20
	sessionTTL   = time.Hour
	maxSessions  = 10000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("index loaded", "vectors", a.LoadIndex(ctx), "model", a.Embedder.Model())

	srv := newServer(a, logger)

	// --- Index reload on events from other processes ---
	if a.NATS != nil {
		sub, err := natsutil.Subscribe(a.NATS, natsutil.SubjectIndexRebuilt, logger, srv.reloader.handle)
		if err != nil {
			logger.Warn("index reload subscription failed", "err", err)
		} else {
			defer func() { _ = sub.Unsubscribe() }()
		}
	}

	// --- Scheduled live-data refresh ---
	if a.Finder.LiveEnabled() && cfg.CacheDurationHours > 0 {
		sched, err := startRefresh(a.Finder, cfg.CacheTTL(), logger)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer func() { _ = sched.Shutdown() }()
	}

	handler := mid.Chain(srv.routes(),
		mid.RequestID(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(a.Metrics),
		mid.CORS(cfg.CORSOrigin),
		mid.MaxBody(maxBodyBytes),
		mid.OTel("carfinder-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "live", a.Finder.LiveEnabled())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
