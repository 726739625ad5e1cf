package anomaly

import (
	"time"

	ierr "github.com/splitfair/splitfair/internal/errors"
)

// Kind classifies a reconciliation anomaly
type Kind string

const (
	// KindPaymentCapturedSubscriptionLapsed records a captured payment
	// on a subscription the provider reports as expired. The transition
	// to EXPIRED still happens; the record exists for manual
	// remediation (refund or reinstatement).
	KindPaymentCapturedSubscriptionLapsed Kind = "payment_captured_subscription_lapsed"
)

// Anomaly is a persisted, queryable inconsistency record requiring
// operator attention. Not an error: it never blocks a transition.
type Anomaly struct {
	ID string `json:"id"`
	// ReferenceCode is a short human-facing code quoted in support
	// conversations, e.g. AN-X7QK2A
	ReferenceCode  string `json:"reference_code"`
	SubscriptionID string `json:"subscription_id"`
	OwnerID        string `json:"owner_id"`
	Kind           Kind   `json:"kind"`
	Description    string `json:"description"`
	// TransactionID references the provider transaction that evidences
	// the anomaly
	TransactionID string            `json:"transaction_id,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	DetectedAt    time.Time         `json:"detected_at"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy    string            `json:"resolved_by,omitempty"`
	Resolution    string            `json:"resolution,omitempty"`
}

func (a *Anomaly) Validate() error {
	if a.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").
			WithHint("Please provide a valid subscription ID").
			Mark(ierr.ErrValidation)
	}
	if a.Kind == "" {
		return ierr.NewError("kind is required").
			WithHint("Please provide an anomaly kind").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsResolved reports whether an operator has closed the record
func (a *Anomaly) IsResolved() bool {
	return a.ResolvedAt != nil
}
