package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/types"
)

// CreateCheckoutRequest initiates a purchase for the acting owner
type CreateCheckoutRequest struct {
	PlanType string `json:"plan_type" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// CancelSubscriptionRequest controls how a subscription ends
type CancelSubscriptionRequest struct {
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason"`
}

// CreateEntitlementRequest is the operator payload for a new
// entitlement row
type CreateEntitlementRequest struct {
	PlanTier    string `json:"plan_tier" validate:"required"`
	FeatureKey  string `json:"feature_key" validate:"required"`
	LimitValue  *int64 `json:"limit_value,omitempty"`
	IsEnabled   bool   `json:"is_enabled"`
	Description string `json:"description,omitempty"`
}

// UpdateEntitlementRequest is the operator partial-update payload.
// Setting unlimited clears the limit; omitting both leaves it alone.
type UpdateEntitlementRequest struct {
	LimitValue  *int64  `json:"limit_value,omitempty"`
	Unlimited   *bool   `json:"unlimited,omitempty"`
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreatePlanRequest is the operator payload for a catalog entry
type CreatePlanRequest struct {
	PlanType     string          `json:"plan_type" validate:"required"`
	Price        decimal.Decimal `json:"price" validate:"required"`
	Currency     string          `json:"currency" validate:"required,len=3"`
	Interval     string          `json:"interval,omitempty"`
	TrialDays    int             `json:"trial_days"`
	Enabled      bool            `json:"enabled"`
	DisplayOrder int             `json:"display_order"`
}

// ResolveAnomalyRequest closes an anomaly record
type ResolveAnomalyRequest struct {
	Resolution string `json:"resolution" validate:"required"`
}

// respondError writes the standard error envelope with the status
// mapped from the error taxonomy
func respondError(c *gin.Context, err error) {
	c.JSON(ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err))
}

// actingOwner returns the owner id carried by the request context
func actingOwner(c *gin.Context) (string, error) {
	ownerID := types.GetUserID(c.Request.Context())
	if ownerID == "" {
		return "", ierr.NewError("missing owner identity").
			WithHint("The request carries no authenticated owner").
			Mark(ierr.ErrValidation)
	}
	return ownerID, nil
}
