package plancatalog

import "context"

// Repository defines the interface for plan catalog storage operations
type Repository interface {
	Create(ctx context.Context, entry *PlanCatalogEntry) error
	Get(ctx context.Context, id string) (*PlanCatalogEntry, error)
	GetByPlanType(ctx context.Context, planType string) (*PlanCatalogEntry, error)
	// ListEnabled returns enabled entries ordered by display order
	ListEnabled(ctx context.Context) ([]*PlanCatalogEntry, error)
	Update(ctx context.Context, id string, params UpdateParams) (*PlanCatalogEntry, error)
}
