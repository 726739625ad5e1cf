package types

import (
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/samber/lo"
)

// HistoryEventType identifies what a history ledger entry records. The
// same values double as the transition kind handed to the notification
// dispatcher.
type HistoryEventType string

const (
	HistoryEventCreated         HistoryEventType = "subscription.created"
	HistoryEventActivated       HistoryEventType = "subscription.activated"
	HistoryEventSuspended       HistoryEventType = "subscription.suspended"
	HistoryEventCancelled       HistoryEventType = "subscription.cancelled"
	HistoryEventExpired         HistoryEventType = "subscription.expired"
	HistoryEventResumed         HistoryEventType = "subscription.resumed"
	HistoryEventCancelScheduled HistoryEventType = "subscription.cancel_scheduled"
	HistoryEventSynced          HistoryEventType = "subscription.synced"
)

func (h HistoryEventType) String() string {
	return string(h)
}

func (h HistoryEventType) Validate() error {
	allowed := []HistoryEventType{
		HistoryEventCreated,
		HistoryEventActivated,
		HistoryEventSuspended,
		HistoryEventCancelled,
		HistoryEventExpired,
		HistoryEventResumed,
		HistoryEventCancelScheduled,
		HistoryEventSynced,
	}
	if !lo.Contains(allowed, h) {
		return ierr.NewError("invalid history event type").
			WithHint("Invalid history event type").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// HistoryEventForStatus maps a newly reached subscription status to the
// ledger event recorded for the transition.
func HistoryEventForStatus(status SubscriptionStatus) HistoryEventType {
	switch status {
	case SubscriptionStatusActive:
		return HistoryEventActivated
	case SubscriptionStatusSuspended:
		return HistoryEventSuspended
	case SubscriptionStatusCancelled:
		return HistoryEventCancelled
	case SubscriptionStatusExpired:
		return HistoryEventExpired
	default:
		return HistoryEventSynced
	}
}
