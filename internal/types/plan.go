package types

import (
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/samber/lo"
)

// PlanType identifies the purchasable plan variants
type PlanType string

const (
	PlanTypeMonthly  PlanType = "MONTHLY"
	PlanTypeYearly   PlanType = "YEARLY"
	PlanTypeLifetime PlanType = "LIFETIME"
)

func (p PlanType) String() string {
	return string(p)
}

// IsRecurring reports whether the plan bills on a cycle. LIFETIME is a
// one-time order captured through the provider's order API.
func (p PlanType) IsRecurring() bool {
	return p == PlanTypeMonthly || p == PlanTypeYearly
}

func (p PlanType) Validate() error {
	allowed := []PlanType{
		PlanTypeMonthly,
		PlanTypeYearly,
		PlanTypeLifetime,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid plan type").
			WithHint("Invalid plan type").
			WithReportableDetails(map[string]any{
				"plan_type":     p,
				"allowed_types": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ResolvedPlan is the effective plan tier an owner resolves to after
// taking subscription state and expiry into account.
type ResolvedPlan string

const (
	ResolvedPlanFree     ResolvedPlan = "FREE"
	ResolvedPlanPro      ResolvedPlan = "PRO"
	ResolvedPlanLifetime ResolvedPlan = "LIFETIME"
)

func (p ResolvedPlan) String() string {
	return string(p)
}

// BillingInterval is the provider-side billing cycle unit
type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "MONTH"
	BillingIntervalYear  BillingInterval = "YEAR"
)

func (b BillingInterval) Validate() error {
	allowed := []BillingInterval{
		BillingIntervalMonth,
		BillingIntervalYear,
	}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing interval").
			WithHint("Invalid billing interval").
			Mark(ierr.ErrValidation)
	}
	return nil
}
