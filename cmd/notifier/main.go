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
	"github.com/eggnunes/crmidea-sub003/internal/config"
	"github.com/eggnunes/crmidea-sub003/internal/consumer"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/postgres"
	"github.com/eggnunes/crmidea-sub003/internal/notify"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		config.Log{}.NewLogger("notifier").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(cfg.App.Name).With("process", "notifier")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.HTTP.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("notifier metrics listening", "port", cfg.HTTP.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	resendClient, err := infraFactory.Resend()
	if err != nil {
		logger.Error("failed to init resend", "error", err)
		os.Exit(1)
	}

	mailConsumer := consumer.NewMailConsumer(
		postgres.NewTxManager(pgPool),
		postgres.NewInboxRepository(pgPool),
		notify.NewResendMailer(resendClient, cfg.Email.From),
		logger,
	)

	logger.Info("notifier started", "topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)
	if err := mailConsumer.Run(ctx, infraFactory.KafkaConsumer()); err != nil {
		logger.Error("notifier stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("notifier exited")
}
