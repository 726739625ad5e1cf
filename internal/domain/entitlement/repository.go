package entitlement

import (
	"context"

	"github.com/splitfair/splitfair/internal/types"
)

// Repository defines the interface for entitlement storage operations.
// (PlanTier, FeatureKey) is unique; Create returns ErrAlreadyExists on a
// duplicate pair.
type Repository interface {
	Create(ctx context.Context, entitlement *FeatureEntitlement) error
	Get(ctx context.Context, id string) (*FeatureEntitlement, error)
	GetByPlanAndFeature(ctx context.Context, tier types.ResolvedPlan, key types.FeatureKey) (*FeatureEntitlement, error)
	ListByPlan(ctx context.Context, tier types.ResolvedPlan) ([]*FeatureEntitlement, error)
	List(ctx context.Context) ([]*FeatureEntitlement, error)
	Update(ctx context.Context, id string, params UpdateParams) (*FeatureEntitlement, error)
}
