package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/quotaledger/pkg/config"
	"github.com/cuemby/quotaledger/pkg/events"
	"github.com/cuemby/quotaledger/pkg/eventsink"
	"github.com/cuemby/quotaledger/pkg/log"
	"github.com/cuemby/quotaledger/pkg/metrics"
	"github.com/cuemby/quotaledger/pkg/overview"
	"github.com/cuemby/quotaledger/pkg/projection"
	"github.com/cuemby/quotaledger/pkg/quota"
	"github.com/cuemby/quotaledger/pkg/quotalock"
	"github.com/cuemby/quotaledger/pkg/rstore"
	"github.com/cuemby/quotaledger/pkg/sweep"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the quota accounting daemon",
	Long: `serve starts the event sink subscription loop and the background
staleness sweep, and exposes health, readiness and metrics endpoints. It
never exposes the quota facade itself as an external API; callers embed
pkg/overview and pkg/admission directly.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to quotad.yaml (optional, defaults are used when absent)")
	serveCmd.Flags().String("data-dir", "./quotad-data", "Data directory for the bbolt projection store (used when postgres.dsn is unset)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.WithComponent("quotad")
	logger.Info().Str("redis_addr", cfg.Redis.Addr).Msg("starting quotad")

	rc := rstore.New(rstore.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pingErr := rc.Ping(ctx)
	cancel()
	if pingErr != nil {
		metrics.RegisterComponent("redis", false, pingErr.Error())
		return fmt.Errorf("ping redis: %w", pingErr)
	}
	metrics.RegisterComponent("redis", true, "connected")

	var store projection.Store
	if cfg.Postgres.DSN != "" {
		sqlStore, err := projection.NewSQLProjectionStore(cfg.Postgres.DSN)
		if err != nil {
			metrics.RegisterComponent("projection_store", false, err.Error())
			return fmt.Errorf("open sql projection store: %w", err)
		}
		store = sqlStore
		logger.Info().Msg("using postgres projection store")
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		boltStore, err := projection.NewBoltProjectionStore(dataDir)
		if err != nil {
			metrics.RegisterComponent("projection_store", false, err.Error())
			return fmt.Errorf("open bolt projection store: %w", err)
		}
		store = boltStore
		logger.Info().Str("data_dir", dataDir).Msg("using bbolt projection store")
	}
	defer store.Close()
	metrics.RegisterComponent("projection_store", true, "ready")

	q := quota.New(rc, cfg.CacheTTLSeconds, cfg.CacheMaxAgeMS)
	lock := quotalock.New(rc)
	lockTTL := time.Duration(cfg.LockTTLSeconds) * time.Second

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sink := eventsink.New(q, lock, broker, lockTTL, cfg.LockWaitTimeout)
	sink.Start()
	defer sink.Stop()

	ov := overview.New(q, lock, store, lockTTL, cfg.LockWaitTimeout)

	sweepMargin := cfg.CacheMaxAgeMS / 10
	sweeper := sweep.New(q, store, ov, time.Minute, sweepMargin)
	sweeper.Start()
	defer sweeper.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("event_sink", true, "running")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: cfg.HealthAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server error: %w", err)
		}
	}()
	logger.Info().Str("addr", cfg.HealthAddr).Msg("health/metrics endpoints listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
