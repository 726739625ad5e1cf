package testutil

import (
	"context"

	"github.com/splitfair/splitfair/internal/domain/entitlement"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/types"
)

// InMemoryEntitlementStore implements entitlement.Repository with the
// composite (plan tier, feature key) uniqueness of the real schema
type InMemoryEntitlementStore struct {
	store *InMemoryStore[*entitlement.FeatureEntitlement]
}

func NewInMemoryEntitlementStore() *InMemoryEntitlementStore {
	return &InMemoryEntitlementStore{
		store: NewInMemoryStore[*entitlement.FeatureEntitlement](),
	}
}

func (s *InMemoryEntitlementStore) Create(_ context.Context, e *entitlement.FeatureEntitlement) error {
	if _, ok := s.store.Find(func(existing *entitlement.FeatureEntitlement) bool {
		return existing.PlanTier == e.PlanTier && existing.FeatureKey == e.FeatureKey
	}); ok {
		return ierr.NewError("duplicate entitlement").
			WithHint("An entitlement for this plan and feature already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	clone := *e
	s.store.Set(e.ID, &clone)
	return nil
}

func (s *InMemoryEntitlementStore) Get(_ context.Context, id string) (*entitlement.FeatureEntitlement, error) {
	e, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("entitlement not found").
			WithHint("Entitlement not found").
			Mark(ierr.ErrNotFound)
	}
	clone := *e
	return &clone, nil
}

func (s *InMemoryEntitlementStore) GetByPlanAndFeature(_ context.Context, tier types.ResolvedPlan, key types.FeatureKey) (*entitlement.FeatureEntitlement, error) {
	e, ok := s.store.Find(func(existing *entitlement.FeatureEntitlement) bool {
		return existing.PlanTier == tier && existing.FeatureKey == key
	})
	if !ok {
		return nil, ierr.NewError("entitlement not found").
			WithHint("No entitlement configured for this plan and feature").
			Mark(ierr.ErrNotFound)
	}
	clone := *e
	return &clone, nil
}

func (s *InMemoryEntitlementStore) ListByPlan(_ context.Context, tier types.ResolvedPlan) ([]*entitlement.FeatureEntitlement, error) {
	return s.store.Filter(func(existing *entitlement.FeatureEntitlement) bool {
		return existing.PlanTier == tier
	}), nil
}

func (s *InMemoryEntitlementStore) List(_ context.Context) ([]*entitlement.FeatureEntitlement, error) {
	return s.store.All(), nil
}

func (s *InMemoryEntitlementStore) Update(_ context.Context, id string, params entitlement.UpdateParams) (*entitlement.FeatureEntitlement, error) {
	e, ok := s.store.Get(id)
	if !ok {
		return nil, ierr.NewError("entitlement not found").
			WithHint("Entitlement not found").
			Mark(ierr.ErrNotFound)
	}
	clone := *e
	params.Apply(&clone)
	s.store.Set(id, &clone)
	result := clone
	return &result, nil
}
