package entitlement

import (
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/types"
)

// FeatureEntitlement maps (plan tier, feature key) to an allow/deny flag
// and an optional usage limit. A nil LimitValue means unlimited.
// Reference data: edited by operators, read by the resolver.
type FeatureEntitlement struct {
	ID          string             `json:"id"`
	PlanTier    types.ResolvedPlan `json:"plan_tier"`
	FeatureKey  types.FeatureKey   `json:"feature_key"`
	LimitValue  *int64             `json:"limit_value,omitempty"`
	IsEnabled   bool               `json:"is_enabled"`
	Description string             `json:"description,omitempty"`
	types.BaseModel
}

func (e *FeatureEntitlement) Validate() error {
	if e.PlanTier == "" {
		return ierr.NewError("plan_tier is required").
			WithHint("Please provide a valid plan tier").
			Mark(ierr.ErrValidation)
	}
	return e.FeatureKey.Validate()
}

// IsLimited reports whether the entitlement carries a finite limit
func (e *FeatureEntitlement) IsLimited() bool {
	return e.LimitValue != nil
}

// UpdateParams is the explicit partial-update payload for an
// entitlement row. LimitValue is tri-state: unset leaves the limit
// alone, set-to-null clears it (unlimited), set-to-value replaces it.
type UpdateParams struct {
	LimitValue  types.Nullable[int64]
	IsEnabled   *bool
	Description *string
}

// Apply copies the set fields onto the entitlement in place
func (p UpdateParams) Apply(e *FeatureEntitlement) {
	if p.LimitValue.IsSet() {
		e.LimitValue = p.LimitValue.Value()
	}
	if p.IsEnabled != nil {
		e.IsEnabled = *p.IsEnabled
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
}
