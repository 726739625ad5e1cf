package testutil

import (
	"context"
	"sort"

	"github.com/splitfair/splitfair/internal/domain/billinghistory"
	ierr "github.com/splitfair/splitfair/internal/errors"
)

// InMemoryHistoryStore implements billinghistory.Repository and
// enforces the external event id uniqueness that backs the idempotency
// gate
type InMemoryHistoryStore struct {
	store *InMemoryStore[*billinghistory.HistoryEntry]
}

func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		store: NewInMemoryStore[*billinghistory.HistoryEntry](),
	}
}

func (s *InMemoryHistoryStore) Create(_ context.Context, entry *billinghistory.HistoryEntry) error {
	if entry.ExternalEventID != nil {
		if _, ok := s.store.Find(func(existing *billinghistory.HistoryEntry) bool {
			return existing.ExternalEventID != nil && *existing.ExternalEventID == *entry.ExternalEventID
		}); ok {
			return ierr.NewError("duplicate external event id").
				WithHint("This external event was already recorded").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	clone := *entry
	s.store.Set(entry.ID, &clone)
	return nil
}

func (s *InMemoryHistoryStore) ExistsByExternalEventID(_ context.Context, externalEventID string) (bool, error) {
	_, ok := s.store.Find(func(existing *billinghistory.HistoryEntry) bool {
		return existing.ExternalEventID != nil && *existing.ExternalEventID == externalEventID
	})
	return ok, nil
}

func (s *InMemoryHistoryStore) ListBySubscription(_ context.Context, subscriptionID string) ([]*billinghistory.HistoryEntry, error) {
	entries := s.store.Filter(func(existing *billinghistory.HistoryEntry) bool {
		return existing.SubscriptionID == subscriptionID
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *InMemoryHistoryStore) CountBySubscription(_ context.Context, subscriptionID string) (int, error) {
	return len(s.store.Filter(func(existing *billinghistory.HistoryEntry) bool {
		return existing.SubscriptionID == subscriptionID
	})), nil
}
