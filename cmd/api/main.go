package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/api"
	"github.com/eggnunes/crmidea-sub003/internal/application/factories/infrastructure"
	"github.com/eggnunes/crmidea-sub003/internal/application/factories/reconcilers"
	"github.com/eggnunes/crmidea-sub003/internal/config"
	"github.com/eggnunes/crmidea-sub003/internal/usecase"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		config.Log{}.NewLogger("api").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(cfg.App.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	repos := reconcilers.NewRepositories(pgPool, cfg.Reconcile.StrictOrdering())
	bySource := reconcilers.Build(repos, cfg, logger)

	handlers := make(map[string]usecase.Handler, len(bySource))
	for source, r := range bySource {
		handlers[source] = r
	}

	getSubscriptionUC := usecase.NewGetSubscription(redisClient, repos.Subscriptions)
	getTrailUC := usecase.NewGetTrail(repos.Events, repos.Notifications, repos.Outbox, repos.Inbox)
	replayEventUC := usecase.NewReplayEvent(repos.Events, handlers)

	h := api.NewHandlers(handlers, getSubscriptionUC, getTrailUC, replayEventUC, cfg.HTTP.MaxBodyBytes, logger)
	apiHandler := api.NewRouter(h, redisClient, api.RouterConfig{
		PaymentWebhookSecret: cfg.Payment.WebhookSecret,
		MaxBodyBytes:         cfg.HTTP.MaxBodyBytes,
		Logger:               logger,
	})
	if cfg.Payment.WebhookSecret == "" {
		logger.Warn("payment webhook signatures are not verified", "env", "PAYMENT_WEBHOOK_SECRET")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           apiHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exiting")
}
