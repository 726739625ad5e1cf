package billinghistory

import "context"

// Repository defines the append-only ledger storage. Create returns
// ErrAlreadyExists when the entry's external event id was already
// recorded; callers treat that as "effect already applied" and stop.
type Repository interface {
	Create(ctx context.Context, entry *HistoryEntry) error
	ExistsByExternalEventID(ctx context.Context, externalEventID string) (bool, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*HistoryEntry, error)
	CountBySubscription(ctx context.Context, subscriptionID string) (int, error)
}
