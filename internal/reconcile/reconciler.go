package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_reconciled_total",
		Help: "Inbound webhook events by source and outcome",
	}, []string{"source", "outcome"})
	reconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_reconcile_duration_seconds",
		Help:    "Time taken to reconcile one event",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	}, []string{"source"})
)

// Outcome describes what reconciliation did with an event.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeStale           Outcome = "stale"
	OutcomeDeduplicated    Outcome = "deduplicated"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeUnresolvedOwner Outcome = "unresolved_owner"
	OutcomeProbe           Outcome = "probe"
	OutcomeMalformed       Outcome = "malformed"
)

type Decoder interface {
	Decode(body []byte, header http.Header) (Inbound, error)
}

// Owner is the tenant an event belongs to.
type Owner struct {
	ID    string
	Email string
}

// UpsertResult reports how a Target wrote the tracked entity.
type UpsertResult struct {
	Outcome Outcome
	Created bool
}

// Target persists one source's tracked entities.
type Target interface {
	// ResolveOwner returns ErrUnresolvedOwner when no tenant matches the event.
	ResolveOwner(ctx context.Context, ev ExternalEvent) (Owner, error)
	Upsert(ctx context.Context, owner Owner, ev ExternalEvent, status Status) (UpsertResult, error)
	// SideEffect performs at most one follow-up action and returns its name, or "" if none.
	SideEffect(ctx context.Context, owner Owner, ev ExternalEvent, status Status) (string, error)
}

type EventLog interface {
	Append(ctx context.Context, e *webhook.Event) error
}

type Result struct {
	Source       string  `json:"source"`
	NaturalKey   string  `json:"natural_key"`
	EventType    string  `json:"event_type"`
	EventSubtype string  `json:"event_subtype,omitempty"`
	Status       Status  `json:"status"`
	Outcome      Outcome `json:"outcome"`
	Created      bool    `json:"created"`
	SideEffect   string  `json:"side_effect,omitempty"`
}

type Report struct {
	Probe   bool     `json:"probe,omitempty"`
	ProbeID string   `json:"probe_id,omitempty"`
	Results []Result `json:"results,omitempty"`
}

type Options struct {
	Source   string
	Decoder  Decoder
	Mapper   Mapper
	Target   Target
	EventLog EventLog
	Logger   *slog.Logger
	Now      func() time.Time
}

type Reconciler struct {
	source   string
	decoder  Decoder
	mapper   Mapper
	target   Target
	eventLog EventLog
	logger   *slog.Logger
	now      func() time.Time
}

func New(opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		source:   opts.Source,
		decoder:  opts.Decoder,
		mapper:   opts.Mapper,
		target:   opts.Target,
		eventLog: opts.EventLog,
		logger:   opts.Logger.With("source", opts.Source),
		now:      opts.Now,
	}
}

func (r *Reconciler) Source() string {
	return r.source
}

// Handle decodes one request body and reconciles every event it carries.
// The only errors returned are ErrMalformedPayload and unexpected storage failures.
func (r *Reconciler) Handle(ctx context.Context, body []byte, header http.Header) (Report, error) {
	in, err := r.decoder.Decode(body, header)
	if err != nil {
		if !errors.Is(err, ErrMalformedPayload) {
			err = fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		r.appendLog(ctx, &webhook.Event{
			NotificationType: string(OutcomeMalformed),
			RawPayload:       string(body),
		})
		eventsReconciled.WithLabelValues(r.source, string(OutcomeMalformed)).Inc()
		r.logger.Warn("malformed webhook payload", "error", err)
		return Report{}, err
	}

	if in.Kind == KindProbe {
		probeType := in.ProbeType
		if probeType == "" {
			probeType = string(OutcomeProbe)
		}
		r.appendLog(ctx, &webhook.Event{
			NotificationType: probeType,
			NaturalKey:       in.ProbeID,
			RawPayload:       string(body),
		})
		eventsReconciled.WithLabelValues(r.source, string(OutcomeProbe)).Inc()
		r.logger.Info("probe acknowledged", "probe_id", in.ProbeID)
		return Report{Probe: true, ProbeID: in.ProbeID}, nil
	}

	report := Report{Results: make([]Result, 0, len(in.Events))}
	for _, ev := range in.Events {
		res, err := r.Reconcile(ctx, ev)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// Reconcile applies one decoded event: raw log, status mapping, owner lookup,
// upsert and at most one side effect.
func (r *Reconciler) Reconcile(ctx context.Context, ev ExternalEvent) (Result, error) {
	started := time.Now()
	defer func() {
		reconcileDuration.WithLabelValues(r.source).Observe(time.Since(started).Seconds())
	}()

	status := r.mapper.Map(ev.EventType, ev.EventSubtype)
	res := Result{
		Source:       r.source,
		NaturalKey:   ev.NaturalKey,
		EventType:    ev.EventType,
		EventSubtype: ev.EventSubtype,
		Status:       status,
	}
	logger := r.logger.With("natural_key", ev.NaturalKey, "event_type", ev.EventType, "subtype", ev.EventSubtype)

	r.appendLog(ctx, r.logEntry(ev))

	outcome, err := r.apply(ctx, logger, ev, status, &res)
	if err != nil {
		eventsReconciled.WithLabelValues(r.source, "error").Inc()
		return res, err
	}
	res.Outcome = outcome
	eventsReconciled.WithLabelValues(r.source, string(outcome)).Inc()
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, logger *slog.Logger, ev ExternalEvent, status Status, res *Result) (Outcome, error) {
	if status == StatusUnknown {
		logger.Info("event ignored", "error", ErrUnknownEventType)
		return OutcomeIgnored, nil
	}

	if ev.NaturalKey == "" {
		logger.Warn("event without natural key", "error", ErrUnresolvedOwner)
		return OutcomeUnresolvedOwner, nil
	}

	owner, err := r.target.ResolveOwner(ctx, ev)
	if errors.Is(err, ErrUnresolvedOwner) {
		logger.Warn("no owner for event", "error", err)
		return OutcomeUnresolvedOwner, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve owner %s: %w", ev.NaturalKey, err)
	}

	up, err := r.target.Upsert(ctx, owner, ev, status)
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", ev.NaturalKey, err)
	}
	res.Created = up.Created
	switch up.Outcome {
	case OutcomeStale:
		logger.Info("older event skipped", "occurred_at", ev.OccurredAt)
		return OutcomeStale, nil
	case OutcomeIgnored:
		logger.Info("event not applied", "owner_id", owner.ID, "status", status)
		return OutcomeIgnored, nil
	}

	effect, err := r.target.SideEffect(ctx, owner, ev, status)
	if err != nil {
		logger.Error("side effect failed", "owner_id", owner.ID, "error", fmt.Errorf("%w: %v", ErrSideEffect, err))
	} else {
		res.SideEffect = effect
	}

	logger.Info("event reconciled", "owner_id", owner.ID, "status", status, "outcome", up.Outcome, "created", up.Created)
	return up.Outcome, nil
}

func (r *Reconciler) logEntry(ev ExternalEvent) *webhook.Event {
	e := &webhook.Event{
		NotificationType: ev.EventType,
		Subtype:          ev.EventSubtype,
		NaturalKey:       ev.NaturalKey,
		RawPayload:       string(ev.Raw),
		DecodedPayload:   ev.Decoded,
	}
	if !ev.OccurredAt.IsZero() {
		at := ev.OccurredAt
		e.SignedAt = &at
	}
	return e
}

// appendLog never fails the request: the raw log is forensic only.
func (r *Reconciler) appendLog(ctx context.Context, e *webhook.Event) {
	if r.eventLog == nil {
		return
	}
	e.ID = uuid.New().String()
	e.Source = r.source
	e.ReceivedAt = r.now()
	if err := r.eventLog.Append(ctx, e); err != nil {
		r.logger.Error("failed to append raw event", "natural_key", e.NaturalKey, "error", err)
	}
}
