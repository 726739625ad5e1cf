package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionStatusIsTerminal(t *testing.T) {
	assert.True(t, SubscriptionStatusCancelled.IsTerminal())
	assert.True(t, SubscriptionStatusExpired.IsTerminal())
	assert.False(t, SubscriptionStatusApprovalPending.IsTerminal())
	assert.False(t, SubscriptionStatusApproved.IsTerminal())
	assert.False(t, SubscriptionStatusActive.IsTerminal())
	assert.False(t, SubscriptionStatusSuspended.IsTerminal())
}

func TestSubscriptionStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    SubscriptionStatus
		to      SubscriptionStatus
		allowed bool
	}{
		{"pending to approved", SubscriptionStatusApprovalPending, SubscriptionStatusApproved, true},
		{"pending straight to active", SubscriptionStatusApprovalPending, SubscriptionStatusActive, true},
		{"pending to expired", SubscriptionStatusApprovalPending, SubscriptionStatusExpired, true},
		{"pending to suspended", SubscriptionStatusApprovalPending, SubscriptionStatusSuspended, false},
		{"approved to active", SubscriptionStatusApproved, SubscriptionStatusActive, true},
		{"approved back to pending", SubscriptionStatusApproved, SubscriptionStatusApprovalPending, false},
		{"active to suspended", SubscriptionStatusActive, SubscriptionStatusSuspended, true},
		{"active to cancelled", SubscriptionStatusActive, SubscriptionStatusCancelled, true},
		{"active to expired", SubscriptionStatusActive, SubscriptionStatusExpired, true},
		{"active to approved", SubscriptionStatusActive, SubscriptionStatusApproved, false},
		{"suspended resumes to active", SubscriptionStatusSuspended, SubscriptionStatusActive, true},
		{"suspended to cancelled", SubscriptionStatusSuspended, SubscriptionStatusCancelled, true},
		{"cancelled never resurrects", SubscriptionStatusCancelled, SubscriptionStatusActive, false},
		{"expired never resurrects", SubscriptionStatusExpired, SubscriptionStatusActive, false},
		{"expired stays expired", SubscriptionStatusExpired, SubscriptionStatusCancelled, false},
		{"self transition rejected", SubscriptionStatusActive, SubscriptionStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSubscriptionStatusValidate(t *testing.T) {
	assert.NoError(t, SubscriptionStatusActive.Validate())
	assert.Error(t, SubscriptionStatus("PAUSED").Validate())
	assert.Error(t, SubscriptionStatus("").Validate())
}

func TestTransitionSourceAuthority(t *testing.T) {
	assert.Greater(t, TransitionSourceActivation.Authority(), TransitionSourceWebhook.Authority())
	assert.Greater(t, TransitionSourceWebhook.Authority(), TransitionSourcePeriodicPull.Authority())
	assert.Greater(t, TransitionSourcePeriodicPull.Authority(), TransitionSourceLocalExpiry.Authority())
	assert.Equal(t, 0, TransitionSource("unknown").Authority())
}
