package subscription

import (
	"context"
	"time"
)

// Repository defines the interface for subscription storage operations.
// Update carries the row version observed by the caller; implementations
// return ErrVersionConflict when the row moved underneath them so the
// caller can re-fetch and re-derive the transition.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Subscription, error)
	// GetLatestForOwner returns the owner's most recent subscription by
	// creation time, terminal or not
	GetLatestForOwner(ctx context.Context, ownerID string) (*Subscription, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Subscription, error)
	// ListNonTerminal returns every subscription that may still change,
	// for the periodic pull
	ListNonTerminal(ctx context.Context) ([]*Subscription, error)
	// Update applies the params to the row identified by id if its
	// version still equals expectedVersion
	Update(ctx context.Context, id string, expectedVersion int, params UpdateParams) (*Subscription, error)
}

// Clock abstracts wall-clock reads so date-only expiry logic is
// testable without waiting
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}
