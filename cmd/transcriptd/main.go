// Package main wires together the transcript service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"transcriptd/internal/api"
	"transcriptd/internal/batch"
	"transcriptd/internal/browser"
	"transcriptd/internal/cache"
	cachememory "transcriptd/internal/cache/memory"
	cachepostgres "transcriptd/internal/cache/postgres"
	"transcriptd/internal/clock/system"
	"transcriptd/internal/config"
	"transcriptd/internal/extract"
	"transcriptd/internal/id/uuid"
	"transcriptd/internal/logging"
	"transcriptd/internal/progress"
	"transcriptd/internal/progress/sinks"
	"transcriptd/internal/queue"
	"transcriptd/internal/ratelimit"
	"transcriptd/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	telemetry.Init()

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)

	store, closeStore, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	clock := system.New()
	idGen := uuid.New()
	limiter := ratelimit.New(ratelimit.Config{QPS: cfg.RateLimit.QPS, Burst: cfg.RateLimit.Burst})

	launcher := browser.NewChromedpLauncher(browser.LaunchOptions{
		UserAgent:     cfg.Browser.UserAgent,
		Headless:      cfg.Browser.Headless,
		NoSandbox:     cfg.Browser.NoSandbox,
		WarmupTimeout: time.Duration(cfg.Browser.WarmupTimeoutSec) * time.Second,
	})
	manager := browser.NewManager(browser.Config{
		LaunchRetries:     cfg.Browser.LaunchRetries,
		LaunchBackoffBase: time.Duration(cfg.Browser.LaunchBackoffMs) * time.Millisecond,
	}, launcher, logger)

	prober := extract.NewCollyProber(extract.ProbeConfig{
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   time.Duration(cfg.Extract.ProbeTimeoutSec) * time.Second,
	}, logger)
	driver := extract.NewChromedpDriver(extract.PageConfig{})
	extractor := extract.New(extract.Config{
		MaxAttempts:    cfg.Extract.MaxAttempts,
		BackoffBase:    time.Duration(cfg.Extract.BackoffBaseMs) * time.Millisecond,
		AttemptTimeout: time.Duration(cfg.Extract.AttemptTimeoutSec) * time.Second,
	}, manager, driver, prober, limiter, hub, clock, logger)

	runner := batch.NewRunner(batch.Config{
		DefaultConcurrency: cfg.Batch.DefaultConcurrency,
		MaxConcurrency:     cfg.Batch.MaxConcurrency,
	}, extractor.Extract, hub, clock, logger)

	admission := queue.New(queue.Config{
		MaxConcurrency: cfg.Queue.MaxConcurrency,
		MaxQueueSize:   cfg.Queue.MaxQueueSize,
		WaitTimeout:    cfg.QueueTimeout(),
	}, logger)

	server := api.NewServer(admission, extractor, runner, store, manager, hub, idGen, clock, cfg, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	admission.Clear()
	if err := admission.Drain(shutdownCtx); err != nil {
		logger.Warn("queue drain incomplete", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildCache(ctx context.Context, cfg config.Config) (cache.Store, func(), error) {
	switch cfg.Cache.Provider {
	case "postgres":
		store, err := cachepostgres.NewStore(ctx, cachepostgres.Config{
			DSN:   cfg.Cache.DSN,
			Table: cfg.Cache.Table,
			TTL:   cfg.CacheTTL(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres cache: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	case "noop":
		return cache.Noop{}, func() {}, nil
	default:
		return cachememory.New(cfg.CacheTTL(), cfg.Cache.MaxSize), func() {}, nil
	}
}
