package calendar

import (
	"testing"

	"github.com/eggnunes/crmidea-sub003/internal/domain/session"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/stretchr/testify/assert"
)

func TestStatuses(t *testing.T) {
	tests := []struct {
		event   string
		subtype string
		want    reconcile.Status
	}{
		{StatusConfirmed, "", session.StatusScheduled},
		{StatusConfirmed, "accepted", session.StatusScheduled},
		{StatusConfirmed, "needsAction", session.StatusScheduled},
		{StatusConfirmed, ResponseDeclined, session.StatusDeclined},
		{StatusTentative, ResponseDeclined, session.StatusTentative},
		{StatusCancelled, "", session.StatusCancelled},
		{"unknownStatus", "", reconcile.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.event+"/"+tt.subtype, func(t *testing.T) {
			assert.Equal(t, tt.want, Statuses.Map(tt.event, tt.subtype))
		})
	}
}
