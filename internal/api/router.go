package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/api/middleware"
	"github.com/eggnunes/crmidea-sub003/internal/calendar"
	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	PaymentWebhookSecret string
	MaxBodyBytes         int64
	Logger               *slog.Logger
	Now                  func() time.Time
}

func NewRouter(h *Handlers, redisClient *redis.Client, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = h.maxBodyBytes
	}
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.RealIP)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey",
			middleware.HeaderIdempotencyKey, "X-Signature", "X-Event-Timestamp"},
		MaxAge: 300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	dedup := middleware.Idempotency(redisClient, middleware.IdempotencyOptions{
		HashBody:     true,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       cfg.Logger,
	})
	calendarDedup := middleware.Idempotency(redisClient, middleware.IdempotencyOptions{
		HashBody:     true,
		KeyHeaders:   []string{calendar.HeaderChannelID, calendar.HeaderResourceState, calendar.HeaderMessageNumber},
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       cfg.Logger,
	})
	signature := middleware.PaymentSignature(cfg.PaymentWebhookSecret, cfg.MaxBodyBytes, cfg.Now)

	r.Route("/webhooks", func(r chi.Router) {
		r.With(dedup).Post("/"+webhook.SourceAppStore, h.Webhook(webhook.SourceAppStore))
		r.With(signature, dedup).Post("/"+webhook.SourcePayment, h.Webhook(webhook.SourcePayment))
		r.With(calendarDedup).Post("/"+webhook.SourceCalendar, h.Webhook(webhook.SourceCalendar))
	})

	r.Get("/subscriptions/{id}", h.GetSubscription)
	r.Get("/trail/{source}/{key}", h.GetTrail)

	replayOnce := middleware.Idempotency(redisClient, middleware.IdempotencyOptions{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       cfg.Logger,
	})
	r.With(replayOnce).Post("/webhook-events/{source}/{id}/replay", h.ReplayEvent)

	r.Handle("/metrics", promhttp.Handler())

	cfg.Logger.Info("registered routes",
		"webhooks", []string{webhook.SourceAppStore, webhook.SourcePayment, webhook.SourceCalendar})

	return r
}
