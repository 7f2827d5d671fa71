package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eggnunes/crmidea-sub003/internal/api/middleware"
	"github.com/eggnunes/crmidea-sub003/internal/domain/subscription"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
	"github.com/eggnunes/crmidea-sub003/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type SubscriptionGetter interface {
	Execute(ctx context.Context, originalTransactionID string) (*subscription.Subscription, error)
}

type TrailGetter interface {
	Execute(ctx context.Context, source, naturalKey string) (*usecase.TrailDTO, error)
}

type Replayer interface {
	Execute(ctx context.Context, source, id string) (reconcile.Report, error)
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	reconcile.Report
}

type Handlers struct {
	webhooks        map[string]usecase.Handler
	getSubscription SubscriptionGetter
	getTrail        TrailGetter
	replay          Replayer
	maxBodyBytes    int64
	logger          *slog.Logger
}

func NewHandlers(webhooks map[string]usecase.Handler, getSubscription SubscriptionGetter, getTrail TrailGetter, replay Replayer, maxBodyBytes int64, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		webhooks:        webhooks,
		getSubscription: getSubscription,
		getTrail:        getTrail,
		replay:          replay,
		maxBodyBytes:    maxBodyBytes,
		logger:          logger,
	}
}

// Webhook returns the ingestion endpoint for one source. Only malformed payloads
// are rejected with 400; soft failures such as an unknown owner still answer 200
// so the provider does not keep retrying.
func (h *Handlers) Webhook(source string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler, ok := h.webhooks[source]
		if !ok {
			middleware.WriteJSONError(w, http.StatusNotFound, "unknown source")
			return
		}

		body, err := middleware.ReadBody(r, h.maxBodyBytes)
		if errors.Is(err, middleware.ErrBodyTooLarge) {
			middleware.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		if err != nil {
			middleware.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		report, err := handler.Handle(r.Context(), body, r.Header)
		if err != nil {
			h.writeReconcileError(w, source, err)
			return
		}
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Report: report})
	}
}

func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		middleware.WriteJSONError(w, http.StatusBadRequest, "missing original transaction id")
		return
	}

	s, err := h.getSubscription.Execute(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) GetTrail(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	key := chi.URLParam(r, "key")

	trail, err := h.getTrail.Execute(r.Context(), source, key)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, trail)
}

func (h *Handlers) ReplayEvent(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	id := chi.URLParam(r, "id")

	report, err := h.replay.Execute(r.Context(), source, id)
	switch {
	case errors.Is(err, usecase.ErrUnknownSource), errors.Is(err, usecase.ErrNotFound):
		h.writeLookupError(w, err)
	case err != nil:
		h.writeReconcileError(w, source, err)
	default:
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Report: report})
	}
}

func (h *Handlers) writeReconcileError(w http.ResponseWriter, source string, err error) {
	if errors.Is(err, reconcile.ErrMalformedPayload) {
		middleware.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("reconcile failed", "source", source, "error", err)
	middleware.WriteJSONError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrUnknownSource), errors.Is(err, usecase.ErrNotFound):
		middleware.WriteJSONError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("lookup failed", "error", err)
		middleware.WriteJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
