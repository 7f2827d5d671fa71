package calendar

import (
	"github.com/eggnunes/crmidea-sub003/internal/domain/session"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
)

// Event statuses and attendee response statuses.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"

	ResponseDeclined = "declined"
)

var Statuses = reconcile.NewStatusTable(
	reconcile.Rule{EventType: StatusConfirmed, Subtype: ResponseDeclined, Status: session.StatusDeclined},
	reconcile.Rule{EventType: StatusConfirmed, Status: session.StatusScheduled},
	reconcile.Rule{EventType: StatusTentative, Status: session.StatusTentative},
	reconcile.Rule{EventType: StatusCancelled, Status: session.StatusCancelled},
)
