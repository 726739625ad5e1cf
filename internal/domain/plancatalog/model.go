package plancatalog

import (
	"github.com/shopspring/decimal"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/types"
)

// PlanCatalogEntry drives creation of remote billing plans and the
// pricing shown at checkout. Read-mostly reference data.
type PlanCatalogEntry struct {
	ID       string          `json:"id"`
	PlanType types.PlanType  `json:"plan_type"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	// Interval is empty for LIFETIME entries
	Interval  types.BillingInterval `json:"interval,omitempty"`
	TrialDays int                   `json:"trial_days"`
	// RemotePlanID is the provider-side billing plan id; empty until the
	// remote plan has been created
	RemotePlanID string `json:"remote_plan_id,omitempty"`
	Enabled      bool   `json:"enabled"`
	DisplayOrder int    `json:"display_order"`
	types.BaseModel
}

func (p *PlanCatalogEntry) Validate() error {
	if err := p.PlanType.Validate(); err != nil {
		return err
	}
	if p.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Please provide a valid currency code").
			Mark(ierr.ErrValidation)
	}
	if p.Price.IsNegative() {
		return ierr.NewError("price cannot be negative").
			WithHint("Please provide a non-negative price").
			Mark(ierr.ErrValidation)
	}
	if p.PlanType.IsRecurring() {
		return p.Interval.Validate()
	}
	return nil
}

// UpdateParams is the explicit partial-update payload for a catalog
// entry. RemotePlanID is tri-state so an operator can detach a remote
// plan without touching the rest of the row.
type UpdateParams struct {
	Price        *decimal.Decimal
	RemotePlanID types.Nullable[string]
	Enabled      *bool
	TrialDays    *int
	DisplayOrder *int
}

// Apply copies the set fields onto the entry in place
func (p UpdateParams) Apply(e *PlanCatalogEntry) {
	if p.Price != nil {
		e.Price = *p.Price
	}
	if p.RemotePlanID.IsSet() {
		if v := p.RemotePlanID.Value(); v != nil {
			e.RemotePlanID = *v
		} else {
			e.RemotePlanID = ""
		}
	}
	if p.Enabled != nil {
		e.Enabled = *p.Enabled
	}
	if p.TrialDays != nil {
		e.TrialDays = *p.TrialDays
	}
	if p.DisplayOrder != nil {
		e.DisplayOrder = *p.DisplayOrder
	}
}
