package testutil

import (
	"context"
	"sort"

	"github.com/splitfair/splitfair/internal/domain/plancatalog"
	ierr "github.com/splitfair/splitfair/internal/errors"
)

// InMemoryPlanCatalogStore implements plancatalog.Repository
type InMemoryPlanCatalogStore struct {
	store *InMemoryStore[*plancatalog.PlanCatalogEntry]
}

func NewInMemoryPlanCatalogStore() *InMemoryPlanCatalogStore {
	return &InMemoryPlanCatalogStore{
		store: NewInMemoryStore[*plancatalog.PlanCatalogEntry](),
	}
}

func (s *InMemoryPlanCatalogStore) Create(_ context.Context, entry *plancatalog.PlanCatalogEntry) error {
	if _, ok := s.store.Find(func(existing *plancatalog.PlanCatalogEntry) bool {
		return existing.PlanType == entry.PlanType
	}); ok {
		return ierr.NewError("duplicate plan type").
			WithHint("A catalog entry for this plan type already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	clone := *entry
	s.store.Set(entry.ID, &clone)
	return nil
}

func (s *InMemoryPlanCatalogStore) Get(_ context.Context, id string) (*plancatalog.PlanCatalogEntry, error) {
	entry, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("catalog entry not found").
			WithHint("Catalog entry not found").
			Mark(ierr.ErrNotFound)
	}
	clone := *entry
	return &clone, nil
}

func (s *InMemoryPlanCatalogStore) GetByPlanType(_ context.Context, planType string) (*plancatalog.PlanCatalogEntry, error) {
	entry, ok := s.store.Find(func(existing *plancatalog.PlanCatalogEntry) bool {
		return existing.PlanType.String() == planType
	})
	if !ok {
		return nil, ierr.NewError("catalog entry not found").
			WithHint("No catalog entry for this plan type").
			Mark(ierr.ErrNotFound)
	}
	clone := *entry
	return &clone, nil
}

func (s *InMemoryPlanCatalogStore) ListEnabled(_ context.Context) ([]*plancatalog.PlanCatalogEntry, error) {
	entries := s.store.Filter(func(existing *plancatalog.PlanCatalogEntry) bool {
		return existing.Enabled
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DisplayOrder < entries[j].DisplayOrder
	})
	return entries, nil
}

func (s *InMemoryPlanCatalogStore) Update(_ context.Context, id string, params plancatalog.UpdateParams) (*plancatalog.PlanCatalogEntry, error) {
	entry, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("catalog entry not found").
			WithHint("Catalog entry not found").
			Mark(ierr.ErrNotFound)
	}
	clone := *entry
	params.Apply(&clone)
	s.store.Set(id, &clone)
	result := clone
	return &result, nil
}
