package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blogpilot/internal/bootstrap"
	"blogpilot/internal/infra"
	"blogpilot/internal/worker"
)

const jobTimeout = 30 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("process", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build services")
	}
	defer func() { _ = rt.Close() }()

	scheduler := worker.NewScheduler(logger, jobTimeout, rt.Registry)
	monthly := &worker.MonthlyGrantJob{Ledger: rt.Ledger, Logger: logger}
	publish := &worker.PublishScheduledJob{Posts: rt.Posts, WordPress: rt.WordPress, Logger: logger}

	if err := scheduler.Add(cfg.MonthlyGrantCron, monthly); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.MonthlyGrantCron).Msg("worker: bad MONTHLY_GRANT_CRON")
	}
	if err := scheduler.Add(cfg.PublishCron, publish); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.PublishCron).Msg("worker: bad PUBLISH_CRON")
	}

	// Catch up on a month that started while the worker was down.
	_ = scheduler.RunOnce(ctx, monthly)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	scheduler.Start()
	logger.Info().
		Str("monthly_cron", cfg.MonthlyGrantCron).
		Str("publish_cron", cfg.PublishCron).
		Msg("worker started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info().Msg("worker stopped")
}
