package subscription

import (
	"testing"
	"time"

	"github.com/splitfair/splitfair/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodPassed(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("no period end never lapses", func(t *testing.T) {
		sub := &Subscription{}
		assert.False(t, sub.PeriodPassed(now))
	})

	t.Run("future period end", func(t *testing.T) {
		end := now.Add(24 * time.Hour)
		sub := &Subscription{CurrentPeriodEnd: &end}
		assert.False(t, sub.PeriodPassed(now))
	})

	t.Run("past period end", func(t *testing.T) {
		end := now.Add(-time.Minute)
		sub := &Subscription{CurrentPeriodEnd: &end}
		assert.True(t, sub.PeriodPassed(now))
	})

	t.Run("trial extends past period end", func(t *testing.T) {
		end := now.Add(-24 * time.Hour)
		trial := now.Add(48 * time.Hour)
		sub := &Subscription{CurrentPeriodEnd: &end, TrialEnd: &trial}
		assert.False(t, sub.PeriodPassed(now))
	})
}

func TestEffectivePeriodEnd(t *testing.T) {
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	trial := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	sub := &Subscription{CurrentPeriodEnd: &end}
	assert.Equal(t, &end, sub.EffectivePeriodEnd())

	sub.TrialEnd = &trial
	assert.Equal(t, &trial, sub.EffectivePeriodEnd())

	sub.CurrentPeriodEnd = nil
	assert.Equal(t, &trial, sub.EffectivePeriodEnd())
}

func TestUpdateParamsApply(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	end := now.Add(30 * 24 * time.Hour)
	sub := &Subscription{
		SubscriptionStatus: types.SubscriptionStatusApprovalPending,
		CurrentPeriodEnd:   &end,
		Version:            3,
	}

	status := types.SubscriptionStatusActive
	payer := "PAYER-1"
	params := UpdateParams{
		SubscriptionStatus: &status,
		PayerRef:           &payer,
		CurrentPeriodEnd:   types.NullValue[time.Time](),
	}
	params.Apply(sub, now)

	assert.Equal(t, types.SubscriptionStatusActive, sub.SubscriptionStatus)
	assert.Equal(t, "PAYER-1", sub.PayerRef)
	assert.Nil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, 4, sub.Version)
	assert.Equal(t, now, sub.UpdatedAt)
}

func TestUpdateParamsLeavesUnsetFieldsAlone(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	end := now.Add(30 * 24 * time.Hour)
	sub := &Subscription{
		RemoteID:           "I-REMOTE",
		PayerRef:           "PAYER-1",
		SubscriptionStatus: types.SubscriptionStatusActive,
		CurrentPeriodEnd:   &end,
		Version:            1,
	}

	synced := now
	UpdateParams{LastSyncedAt: &synced}.Apply(sub, now)

	assert.Equal(t, "I-REMOTE", sub.RemoteID)
	assert.Equal(t, "PAYER-1", sub.PayerRef)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, end, *sub.CurrentPeriodEnd)
	assert.Equal(t, 2, sub.Version)
}

func TestValidate(t *testing.T) {
	sub := &Subscription{
		OwnerID:            "owner_1",
		PlanType:           types.PlanTypeMonthly,
		SubscriptionStatus: types.SubscriptionStatusActive,
	}
	assert.NoError(t, sub.Validate())

	sub.OwnerID = ""
	assert.Error(t, sub.Validate())

	sub.OwnerID = "owner_1"
	sub.PlanType = types.PlanType("WEEKLY")
	assert.Error(t, sub.Validate())
}
