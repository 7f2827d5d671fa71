// Package calendar syncs Google Calendar events into consulting sessions.
package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
)

// Push notification headers sent by the Calendar API.
const (
	HeaderResourceState = "X-Goog-Resource-State"
	HeaderChannelID     = "X-Goog-Channel-Id"
	HeaderMessageNumber = "X-Goog-Message-Number"

	resourceStateSync = "sync"
	kindChannel       = "api#channel"
)

const (
	AttrTitle     = "summary"
	AttrStart     = "start"
	AttrEnd       = "end"
	AttrOrganizer = "organizer"
	AttrAttendees = "attendees"
	AttrHTMLLink  = "htmlLink"
)

var errMissingID = errors.New("missing id")

type eventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

// parse returns the zero time for an empty value.
func (t eventTime) parse() (time.Time, error) {
	switch {
	case t.DateTime != "":
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v.UTC(), err
	case t.Date != "":
		return time.Parse(time.DateOnly, t.Date)
	}
	return time.Time{}, nil
}

type attendee struct {
	Email          string `json:"email"`
	ResponseStatus string `json:"responseStatus"`
	Organizer      bool   `json:"organizer"`
}

type calendarEvent struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Summary   string    `json:"summary"`
	HTMLLink  string    `json:"htmlLink"`
	Updated   string    `json:"updated"`
	Start     eventTime `json:"start"`
	End       eventTime `json:"end"`
	Organizer struct {
		Email string `json:"email"`
	} `json:"organizer"`
	Attendees []attendee `json:"attendees"`
}

type Decoder struct {
	now func() time.Time
}

func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Decoder{now: now}
}

// Decode accepts a push sync message, a channel resource, a single event resource
// or an events list.
func (d *Decoder) Decode(body []byte, header http.Header) (reconcile.Inbound, error) {
	state := header.Get(HeaderResourceState)
	if state == resourceStateSync {
		return reconcile.Probe(resourceStateSync, header.Get(HeaderChannelID)), nil
	}
	// Change pings carry no event data; the events arrive in a later list call.
	if state != "" && len(bytes.TrimSpace(body)) == 0 {
		return reconcile.Probe(state, header.Get(HeaderChannelID)), nil
	}

	var envelope struct {
		Kind  string            `json:"kind"`
		ID    string            `json:"id"`
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return reconcile.Inbound{}, reconcile.Malformed("invalid json: %v", err)
	}
	if envelope.Kind == kindChannel {
		return reconcile.Probe(kindChannel, envelope.ID), nil
	}

	items := envelope.Items
	if items == nil {
		items = []json.RawMessage{body}
	}
	if len(items) == 0 {
		return reconcile.Inbound{}, reconcile.Malformed("no events")
	}

	events := make([]reconcile.ExternalEvent, 0, len(items))
	for i, raw := range items {
		ev, err := d.decodeEvent(raw)
		if err != nil {
			return reconcile.Inbound{}, reconcile.Malformed("item %d: %v", i, err)
		}
		events = append(events, ev)
	}
	return reconcile.Events(events...), nil
}

func (d *Decoder) decodeEvent(raw json.RawMessage) (reconcile.ExternalEvent, error) {
	var e calendarEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return reconcile.ExternalEvent{}, err
	}
	if e.ID == "" {
		return reconcile.ExternalEvent{}, errMissingID
	}

	start, err := e.Start.parse()
	if err != nil {
		return reconcile.ExternalEvent{}, err
	}
	end, err := e.End.parse()
	if err != nil {
		return reconcile.ExternalEvent{}, err
	}

	occurredAt := d.now()
	if e.Updated != "" {
		updated, err := time.Parse(time.RFC3339, e.Updated)
		if err != nil {
			return reconcile.ExternalEvent{}, err
		}
		occurredAt = updated.UTC()
	}

	organizer := strings.ToLower(e.Organizer.Email)
	var (
		subtype string
		emails  []string
	)
	for _, a := range e.Attendees {
		email := strings.ToLower(a.Email)
		if a.Organizer || email == organizer {
			continue
		}
		if subtype == "" {
			subtype = a.ResponseStatus
		}
		if email != "" {
			emails = append(emails, email)
		}
	}

	attrs := map[string]any{
		AttrTitle:     e.Summary,
		AttrOrganizer: organizer,
		AttrAttendees: emails,
		AttrHTMLLink:  e.HTMLLink,
	}
	if !start.IsZero() {
		attrs[AttrStart] = start
	}
	if !end.IsZero() {
		attrs[AttrEnd] = end
	}

	return reconcile.ExternalEvent{
		NaturalKey:   e.ID,
		EventType:    e.Status,
		EventSubtype: subtype,
		OccurredAt:   occurredAt,
		Attributes:   attrs,
		Raw:          raw,
		Decoded:      raw,
	}, nil
}
