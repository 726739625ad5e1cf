package types

import (
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the local lifecycle status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusApprovalPending SubscriptionStatus = "APPROVAL_PENDING"
	SubscriptionStatusApproved        SubscriptionStatus = "APPROVED"
	SubscriptionStatusActive          SubscriptionStatus = "ACTIVE"
	SubscriptionStatusSuspended       SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusCancelled       SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired         SubscriptionStatus = "EXPIRED"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status admits no further user-driven
// transitions. Re-subscribing creates a new subscription row; only
// reconciliation against a provider that still reports ACTIVE can
// reinstate a terminal row.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// transitions is the allowed state machine. Terminal states have no
// outgoing edges.
var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusApprovalPending: {
		SubscriptionStatusApproved,
		SubscriptionStatusActive,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
	},
	SubscriptionStatusApproved: {
		SubscriptionStatusActive,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
	},
	SubscriptionStatusActive: {
		SubscriptionStatusSuspended,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
	},
	SubscriptionStatusSuspended: {
		SubscriptionStatusActive,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
	},
}

// CanTransitionTo reports whether the state machine allows moving from
// s to target.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	return lo.Contains(transitions[s], target)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusApprovalPending,
		SubscriptionStatusApproved,
		SubscriptionStatusActive,
		SubscriptionStatusSuspended,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TransitionSource identifies what triggered a state transition. Sources
// carry an authority ranking used when merging local and remote state.
type TransitionSource string

const (
	TransitionSourceActivation   TransitionSource = "activation"
	TransitionSourceWebhook      TransitionSource = "webhook"
	TransitionSourcePeriodicPull TransitionSource = "periodic_pull"
	TransitionSourceLocalExpiry  TransitionSource = "local_expiry"
)

// Authority returns the precedence rank of the source. Higher ranks win
// when two sources disagree: explicit post-checkout activation beats a
// webhook, which beats a scheduled pull, which beats the date-only
// local expiration check.
func (t TransitionSource) Authority() int {
	switch t {
	case TransitionSourceActivation:
		return 4
	case TransitionSourceWebhook:
		return 3
	case TransitionSourcePeriodicPull:
		return 2
	case TransitionSourceLocalExpiry:
		return 1
	default:
		return 0
	}
}

func (t TransitionSource) String() string {
	return string(t)
}
