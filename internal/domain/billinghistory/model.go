package billinghistory

import (
	"time"

	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/types"
)

// HistoryEntry is one row of the append-only billing ledger. Entries are
// never mutated. The unique constraint on ExternalEventID is the
// idempotency gate for webhook replays.
type HistoryEntry struct {
	ID             string                 `json:"id"`
	SubscriptionID string                 `json:"subscription_id"`
	EventType      types.HistoryEventType `json:"event_type"`
	OldValue       string                 `json:"old_value"`
	NewValue       string                 `json:"new_value"`
	// ExternalEventID is the provider webhook event id, or a synthetic
	// idempotency key for poll-triggered syncs. Unique when present.
	ExternalEventID *string `json:"external_event_id,omitempty"`
	// ExternalResourceID is the provider-side resource the event refers
	// to (subscription id, order id, sale id)
	ExternalResourceID string            `json:"external_resource_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	CreatedBy          string            `json:"created_by,omitempty"`
}

func (h *HistoryEntry) Validate() error {
	if h.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").
			WithHint("Please provide a valid subscription ID").
			Mark(ierr.ErrValidation)
	}
	return h.EventType.Validate()
}
