package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/splitfair/splitfair/internal/domain/anomaly"
	ierr "github.com/splitfair/splitfair/internal/errors"
)

// InMemoryAnomalyStore implements anomaly.Repository
type InMemoryAnomalyStore struct {
	store *InMemoryStore[*anomaly.Anomaly]
}

func NewInMemoryAnomalyStore() *InMemoryAnomalyStore {
	return &InMemoryAnomalyStore{
		store: NewInMemoryStore[*anomaly.Anomaly](),
	}
}

func (s *InMemoryAnomalyStore) Create(_ context.Context, a *anomaly.Anomaly) error {
	clone := *a
	s.store.Set(a.ID, &clone)
	return nil
}

func (s *InMemoryAnomalyStore) Get(_ context.Context, id string) (*anomaly.Anomaly, error) {
	a, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("anomaly not found").
			WithHint("Anomaly not found").
			Mark(ierr.ErrNotFound)
	}
	clone := *a
	return &clone, nil
}

func (s *InMemoryAnomalyStore) ListOpen(_ context.Context) ([]*anomaly.Anomaly, error) {
	open := s.store.Filter(func(existing *anomaly.Anomaly) bool {
		return !existing.IsResolved()
	})
	sort.Slice(open, func(i, j int) bool {
		return open[i].DetectedAt.After(open[j].DetectedAt)
	})
	return open, nil
}

func (s *InMemoryAnomalyStore) ListBySubscription(_ context.Context, subscriptionID string) ([]*anomaly.Anomaly, error) {
	return s.store.Filter(func(existing *anomaly.Anomaly) bool {
		return existing.SubscriptionID == subscriptionID
	}), nil
}

func (s *InMemoryAnomalyStore) MarkResolved(_ context.Context, id, resolvedBy, resolution string, resolvedAt time.Time) (*anomaly.Anomaly, error) {
	a, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("anomaly not found").
			WithHint("Anomaly not found").
			Mark(ierr.ErrNotFound)
	}
	if a.IsResolved() {
		return nil, ierr.NewError("anomaly already resolved").
			WithHint("This anomaly was resolved earlier").
			Mark(ierr.ErrAlreadyExists)
	}
	clone := *a
	clone.ResolvedAt = &resolvedAt
	clone.ResolvedBy = resolvedBy
	clone.Resolution = resolution
	s.store.Set(id, &clone)
	result := clone
	return &result, nil
}
