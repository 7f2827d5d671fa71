package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/application/factories/infrastructure"
	"github.com/eggnunes/crmidea-sub003/internal/application/factories/reconcilers"
	"github.com/eggnunes/crmidea-sub003/internal/config"
	"github.com/eggnunes/crmidea-sub003/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		config.Log{}.NewLogger("worker").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(cfg.App.Name).With("process", "worker")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	repos := reconcilers.NewRepositories(pgPool, cfg.Reconcile.StrictOrdering())

	poller := worker.NewOutboxPoller(repos.Outbox, infraFactory.KafkaProducer(), worker.PollerConfig{
		Interval:   cfg.Outbox.Interval,
		BatchSize:  cfg.Outbox.BatchSize,
		StuckAfter: cfg.Outbox.StuckAfter,
	}, logger)

	followUp := worker.NewFollowUpChecker(repos.Leads, repos.Notifier(), worker.FollowUpConfig{
		AfterDays: cfg.FollowUp.AfterDays,
		Interval:  cfg.FollowUp.Interval,
		BatchSize: cfg.FollowUp.BatchSize,
	}, logger, nil)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.HTTP.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return followUp.Run(gctx) })
	g.Go(func() error {
		logger.Info("worker metrics listening", "port", cfg.HTTP.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", "error", err)
	}

	logger.Info("worker exited")
}
