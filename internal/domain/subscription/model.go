package subscription

import (
	"time"

	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/types"
)

// Subscription is the local billing record kept consistent with the
// remote payment provider's system of record. Owned exclusively by the
// reconciliation engine: created on purchase initiation, mutated only
// through defined transitions, never hard-deleted.
type Subscription struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	// RemoteID is the provider-side subscription id (or order id for
	// lifetime purchases). Unique when present.
	RemoteID string `json:"remote_id"`
	// PayerRef is the provider-side payer reference, set once the buyer
	// approves the subscription.
	PayerRef           string                   `json:"payer_ref"`
	PlanType           types.PlanType           `json:"plan_type"`
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status"`
	CurrentPeriodStart time.Time                `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time               `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CanceledAt         *time.Time               `json:"canceled_at,omitempty"`
	TrialEnd           *time.Time               `json:"trial_end,omitempty"`
	NextBillingTime    *time.Time               `json:"next_billing_time,omitempty"`
	// LastSyncedAt records the last successful remote reconciliation
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	// Version guards read-modify-write cycles on the same row
	Version  int               `json:"version"`
	Metadata map[string]string `json:"metadata,omitempty"`
	types.BaseModel
}

func (s *Subscription) Validate() error {
	if s.OwnerID == "" {
		return ierr.NewError("owner_id is required").
			WithHint("Please provide a valid owner ID").
			Mark(ierr.ErrValidation)
	}
	if err := s.PlanType.Validate(); err != nil {
		return err
	}
	return s.SubscriptionStatus.Validate()
}

// IsTerminal reports whether the subscription reached a terminal state
func (s *Subscription) IsTerminal() bool {
	return s.SubscriptionStatus.IsTerminal()
}

// PeriodPassed reports whether the paid period (or trial) has lapsed at
// the given instant. Subscriptions without a period end never lapse by
// date alone.
func (s *Subscription) PeriodPassed(now time.Time) bool {
	end := s.EffectivePeriodEnd()
	if end == nil {
		return false
	}
	return end.Before(now)
}

// EffectivePeriodEnd returns the later of period end and trial end
func (s *Subscription) EffectivePeriodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	if s.TrialEnd != nil && (end == nil || s.TrialEnd.After(*end)) {
		end = s.TrialEnd
	}
	return end
}

// UpdateParams is the explicit partial-update payload for a
// subscription row. Pointer fields update when non-nil; Nullable fields
// distinguish clearing from leaving unchanged.
type UpdateParams struct {
	SubscriptionStatus *types.SubscriptionStatus
	RemoteID           *string
	PayerRef           *string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   types.Nullable[time.Time]
	CancelAtPeriodEnd  *bool
	CanceledAt         types.Nullable[time.Time]
	TrialEnd           types.Nullable[time.Time]
	NextBillingTime    types.Nullable[time.Time]
	LastSyncedAt       *time.Time
}

// Apply copies the set fields onto the subscription in place
func (p UpdateParams) Apply(s *Subscription, now time.Time) {
	if p.SubscriptionStatus != nil {
		s.SubscriptionStatus = *p.SubscriptionStatus
	}
	if p.RemoteID != nil {
		s.RemoteID = *p.RemoteID
	}
	if p.PayerRef != nil {
		s.PayerRef = *p.PayerRef
	}
	if p.CurrentPeriodStart != nil {
		s.CurrentPeriodStart = *p.CurrentPeriodStart
	}
	if p.CurrentPeriodEnd.IsSet() {
		s.CurrentPeriodEnd = p.CurrentPeriodEnd.Value()
	}
	if p.CancelAtPeriodEnd != nil {
		s.CancelAtPeriodEnd = *p.CancelAtPeriodEnd
	}
	if p.CanceledAt.IsSet() {
		s.CanceledAt = p.CanceledAt.Value()
	}
	if p.TrialEnd.IsSet() {
		s.TrialEnd = p.TrialEnd.Value()
	}
	if p.NextBillingTime.IsSet() {
		s.NextBillingTime = p.NextBillingTime.Value()
	}
	if p.LastSyncedAt != nil {
		s.LastSyncedAt = p.LastSyncedAt
	}
	s.UpdatedAt = now
	s.Version++
}
