// Package reconcile applies lifecycle events reported by external systems (App Store,
// payment provider, calendar) to locally tracked entities.
//
// A source plugs in three pieces: a Decoder turning the request body into ExternalEvents,
// a Mapper turning (event type, subtype) into a Status, and a Target persisting the result.
// The Reconciler runs them in order, keeps the raw event log, and converts data gaps into
// successful acknowledgements so the caller does not retry forever.
package reconcile

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the internal lifecycle state of a tracked entity.
type Status string

// StatusUnknown is returned by a Mapper for event types outside its vocabulary.
const StatusUnknown Status = "unknown"

// ExternalEvent is the normalized form of one inbound notification.
// Attribute values are typed by the decoder: string, []string, time.Time, bool or decimal.Decimal.
type ExternalEvent struct {
	NaturalKey   string
	EventType    string
	EventSubtype string
	OccurredAt   time.Time
	Attributes   map[string]any
	Raw          []byte
	Decoded      json.RawMessage
}

func (e ExternalEvent) String(key string) string {
	if v, ok := e.Attributes[key].(string); ok {
		return v
	}
	return ""
}

func (e ExternalEvent) Strings(key string) []string {
	if v, ok := e.Attributes[key].([]string); ok {
		return v
	}
	return nil
}

func (e ExternalEvent) Time(key string) *time.Time {
	if v, ok := e.Attributes[key].(time.Time); ok && !v.IsZero() {
		return &v
	}
	return nil
}

func (e ExternalEvent) Bool(key string) *bool {
	if v, ok := e.Attributes[key].(bool); ok {
		return &v
	}
	return nil
}

func (e ExternalEvent) Decimal(key string) *decimal.Decimal {
	if v, ok := e.Attributes[key].(decimal.Decimal); ok {
		return &v
	}
	return nil
}

// Kind tells which variant of Inbound a decoder produced.
type Kind int

const (
	KindEvent Kind = iota
	KindProbe
)

// Inbound is the decoded request body. Probes are connectivity checks from the
// external system; they are acknowledged and never reconciled.
type Inbound struct {
	Kind      Kind
	ProbeID   string
	ProbeType string
	Events    []ExternalEvent
}

func Probe(probeType, id string) Inbound {
	return Inbound{Kind: KindProbe, ProbeType: probeType, ProbeID: id}
}

func Events(events ...ExternalEvent) Inbound {
	return Inbound{Kind: KindEvent, Events: events}
}
