package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/splitfair/splitfair/internal/domain/subscription"
	ierr "github.com/splitfair/splitfair/internal/errors"
)

// InMemorySubscriptionStore implements subscription.Repository with the
// same optimistic-locking semantics as the gorm implementation
type InMemorySubscriptionStore struct {
	store *InMemoryStore[*subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		store: NewInMemoryStore[*subscription.Subscription](),
	}
}

func (s *InMemorySubscriptionStore) Create(_ context.Context, sub *subscription.Subscription) error {
	if sub.RemoteID != "" {
		if _, ok := s.store.Find(func(existing *subscription.Subscription) bool {
			return existing.RemoteID == sub.RemoteID
		}); ok {
			return ierr.NewError("duplicate remote id").
				WithHint("A subscription with this remote id already exists").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	s.store.Set(sub.ID, copySubscription(sub))
	return nil
}

func (s *InMemorySubscriptionStore) Get(_ context.Context, id string) (*subscription.Subscription, error) {
	sub, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) GetByRemoteID(_ context.Context, remoteID string) (*subscription.Subscription, error) {
	sub, ok := s.store.Find(func(existing *subscription.Subscription) bool {
		return existing.RemoteID == remoteID
	})
	if !ok {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found for remote id").
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) GetLatestForOwner(_ context.Context, ownerID string) (*subscription.Subscription, error) {
	owned := s.store.Filter(func(existing *subscription.Subscription) bool {
		return existing.OwnerID == ownerID
	})
	if len(owned) == 0 {
		return nil, ierr.NewError("owner has no subscription").
			WithHint("Owner has no subscription").
			Mark(ierr.ErrNotFound)
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	return copySubscription(owned[0]), nil
}

func (s *InMemorySubscriptionStore) ListByOwner(_ context.Context, ownerID string) ([]*subscription.Subscription, error) {
	owned := s.store.Filter(func(existing *subscription.Subscription) bool {
		return existing.OwnerID == ownerID
	})
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	return copySubscriptions(owned), nil
}

func (s *InMemorySubscriptionStore) ListNonTerminal(_ context.Context) ([]*subscription.Subscription, error) {
	return copySubscriptions(s.store.Filter(func(existing *subscription.Subscription) bool {
		return !existing.IsTerminal()
	})), nil
}

func (s *InMemorySubscriptionStore) Update(_ context.Context, id string, expectedVersion int, params subscription.UpdateParams) (*subscription.Subscription, error) {
	current, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			Mark(ierr.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return nil, ierr.NewError("subscription was modified concurrently").
			WithHint("Re-fetch the subscription and retry the transition").
			Mark(ierr.ErrVersionConflict)
	}

	updated := copySubscription(current)
	params.Apply(updated, time.Now().UTC())
	s.store.Set(id, updated)
	return copySubscription(updated), nil
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	clone := *sub
	if sub.Metadata != nil {
		clone.Metadata = make(map[string]string, len(sub.Metadata))
		for k, v := range sub.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func copySubscriptions(subs []*subscription.Subscription) []*subscription.Subscription {
	result := make([]*subscription.Subscription, len(subs))
	for i, sub := range subs {
		result[i] = copySubscription(sub)
	}
	return result
}
