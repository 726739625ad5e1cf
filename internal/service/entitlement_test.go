package service

import (
	"context"
	"testing"
	"time"

	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/config"
	"github.com/splitfair/splitfair/internal/domain/entitlement"
	"github.com/splitfair/splitfair/internal/domain/subscription"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/testutil"
	"github.com/splitfair/splitfair/internal/types"
	"github.com/stretchr/testify/suite"
)

// stubUsageCounter returns scripted usage per feature key
type stubUsageCounter struct {
	usage map[types.FeatureKey]int64
}

func (s *stubUsageCounter) CurrentUsage(_ context.Context, _ string, key types.FeatureKey) (int64, error) {
	return s.usage[key], nil
}

type EntitlementServiceSuite struct {
	suite.Suite
	ctx context.Context

	subs         *testutil.InMemorySubscriptionStore
	entitlements *testutil.InMemoryEntitlementStore
	usage        *stubUsageCounter
	clock        *testutil.FakeClock

	service EntitlementService
}

func TestEntitlementServiceSuite(t *testing.T) {
	suite.Run(t, new(EntitlementServiceSuite))
}

func (s *EntitlementServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.subs = testutil.NewInMemorySubscriptionStore()
	s.entitlements = testutil.NewInMemoryEntitlementStore()
	s.usage = &stubUsageCounter{usage: map[types.FeatureKey]int64{}}
	s.clock = testutil.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	cfg := &config.Configuration{
		Cache: config.CacheConfig{Enabled: true},
	}
	s.service = NewEntitlementService(
		s.entitlements, s.subs, s.usage, s.clock,
		cache.NewInMemoryCache(cfg), testutil.NewTestLogger(),
	)

	s.seedEntitlements()
}

func (s *EntitlementServiceSuite) seedEntitlements() {
	limit := func(v int64) *int64 { return &v }
	rows := []*entitlement.FeatureEntitlement{
		{ID: "ent_1", PlanTier: types.ResolvedPlanFree, FeatureKey: types.FeatureKeyMaxGroups, LimitValue: limit(2), IsEnabled: true},
		{ID: "ent_2", PlanTier: types.ResolvedPlanFree, FeatureKey: types.FeatureKeyCSVExport, IsEnabled: false},
		{ID: "ent_3", PlanTier: types.ResolvedPlanPro, FeatureKey: types.FeatureKeyMaxGroups, IsEnabled: true},
		{ID: "ent_4", PlanTier: types.ResolvedPlanPro, FeatureKey: types.FeatureKeyCSVExport, IsEnabled: true},
		{ID: "ent_5", PlanTier: types.ResolvedPlanLifetime, FeatureKey: types.FeatureKeyCSVExport, IsEnabled: true},
	}
	for _, row := range rows {
		s.Require().NoError(s.entitlements.Create(s.ctx, row))
	}
}

func (s *EntitlementServiceSuite) seedSubscription(status types.SubscriptionStatus, planType types.PlanType, periodEnd *time.Time) {
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OwnerID:            "owner_1",
		PlanType:           planType,
		SubscriptionStatus: status,
		CurrentPeriodStart: s.clock.Now().Add(-10 * 24 * time.Hour),
		CurrentPeriodEnd:   periodEnd,
		Version:            1,
	}
	sub.CreatedAt = s.clock.Now()
	s.Require().NoError(s.subs.Create(s.ctx, sub))
}

func future(c *testutil.FakeClock, d time.Duration) *time.Time {
	t := c.Now().Add(d)
	return &t
}

func (s *EntitlementServiceSuite) TestNoSubscriptionResolvesFree() {
	tier, sub, err := s.service.ResolvePlanTier(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.ResolvedPlanFree, tier)
	s.Nil(sub)
}

func (s *EntitlementServiceSuite) TestActiveWithFuturePeriodResolvesPro() {
	s.seedSubscription(types.SubscriptionStatusActive, types.PlanTypeMonthly, future(s.clock, 10*24*time.Hour))

	tier, sub, err := s.service.ResolvePlanTier(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.ResolvedPlanPro, tier)
	s.NotNil(sub)
}

func (s *EntitlementServiceSuite) TestActiveWithoutPeriodEndResolvesPro() {
	s.seedSubscription(types.SubscriptionStatusActive, types.PlanTypeMonthly, nil)

	tier, _, err := s.service.ResolvePlanTier(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.ResolvedPlanPro, tier)
}

func (s *EntitlementServiceSuite) TestActivePastPeriodEndResolvesFree() {
	end := s.clock.Now().Add(-24 * time.Hour)
	s.seedSubscription(types.SubscriptionStatusActive, types.PlanTypeMonthly, &end)

	tier, _, err := s.service.ResolvePlanTier(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.ResolvedPlanFree, tier)
}

func (s *EntitlementServiceSuite) TestLifetimeResolvesLifetime() {
	s.seedSubscription(types.SubscriptionStatusActive, types.PlanTypeLifetime, nil)

	tier, _, err := s.service.ResolvePlanTier(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.ResolvedPlanLifetime, tier)
}

func (s *EntitlementServiceSuite) TestSuspendedResolvesFree() {
	s.seedSubscription(types.SubscriptionStatusSuspended, types.PlanTypeMonthly, future(s.clock, 10*24*time.Hour))

	tier, _, err := s.service.ResolvePlanTier(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.ResolvedPlanFree, tier)
}

func (s *EntitlementServiceSuite) TestCheckFeatureUnknownKeyFailsClosed() {
	_, err := s.service.CheckFeature(s.ctx, "owner_1", types.FeatureKey("made_up"))
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *EntitlementServiceSuite) TestCheckFeatureDisabledIsFalse() {
	allowed, err := s.service.CheckFeature(s.ctx, "owner_1", types.FeatureKeyCSVExport)
	s.Require().NoError(err)
	s.False(allowed)
}

func (s *EntitlementServiceSuite) TestCheckFeatureEnabledUnlimitedIsTrue() {
	s.seedSubscription(types.SubscriptionStatusActive, types.PlanTypeMonthly, future(s.clock, 10*24*time.Hour))

	allowed, err := s.service.CheckFeature(s.ctx, "owner_1", types.FeatureKeyCSVExport)
	s.Require().NoError(err)
	s.True(allowed)
}

func (s *EntitlementServiceSuite) TestCheckFeatureMissingEntitlementIsFalse() {
	allowed, err := s.service.CheckFeature(s.ctx, "owner_1", types.FeatureKeyPrioritySupport)
	s.Require().NoError(err)
	s.False(allowed)
}

func (s *EntitlementServiceSuite) TestEnforceLimitStrictlyBelow() {
	s.usage.usage[types.FeatureKeyMaxGroups] = 1

	result, err := s.service.EnforceLimit(s.ctx, "owner_1", types.FeatureKeyMaxGroups)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(int64(1), result.Current)
	s.Equal(int64(2), *result.Limit)
}

func (s *EntitlementServiceSuite) TestEnforceLimitAtBoundaryDenied() {
	s.usage.usage[types.FeatureKeyMaxGroups] = 2

	result, err := s.service.EnforceLimit(s.ctx, "owner_1", types.FeatureKeyMaxGroups)
	s.Require().NoError(err)
	s.False(result.Allowed)
}

func (s *EntitlementServiceSuite) TestEnforceLimitUnlimitedForPro() {
	s.seedSubscription(types.SubscriptionStatusActive, types.PlanTypeMonthly, future(s.clock, 10*24*time.Hour))
	s.usage.usage[types.FeatureKeyMaxGroups] = 500

	result, err := s.service.EnforceLimit(s.ctx, "owner_1", types.FeatureKeyMaxGroups)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Nil(result.Limit)
}

func (s *EntitlementServiceSuite) TestSummaryIncludesUsageForLimitedFeatures() {
	s.usage.usage[types.FeatureKeyMaxGroups] = 1

	summary, err := s.service.GetEntitlementSummary(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.ResolvedPlanFree, summary.PlanTier)
	s.Len(summary.Features, len(types.AllFeatureKeys()))

	var groups *FeatureStatus
	for i := range summary.Features {
		if summary.Features[i].Feature == types.FeatureKeyMaxGroups {
			groups = &summary.Features[i]
		}
	}
	s.Require().NotNil(groups)
	s.True(groups.Enabled)
	s.Equal(int64(1), groups.Current)
	s.Equal(int64(2), *groups.Limit)
}

func (s *EntitlementServiceSuite) TestOperatorUpdateClearsLimit() {
	updated, err := s.service.UpdateEntitlement(s.ctx, "ent_1", entitlement.UpdateParams{
		LimitValue: types.NullValue[int64](),
	})
	s.Require().NoError(err)
	s.Nil(updated.LimitValue)

	// With the limit cleared the feature gate passes outright
	allowed, err := s.service.CheckFeature(s.ctx, "owner_1", types.FeatureKeyMaxGroups)
	s.Require().NoError(err)
	s.True(allowed)
}

func (s *EntitlementServiceSuite) TestDuplicateEntitlementRejected() {
	_, err := s.service.CreateEntitlement(s.ctx, &entitlement.FeatureEntitlement{
		PlanTier:   types.ResolvedPlanFree,
		FeatureKey: types.FeatureKeyMaxGroups,
		IsEnabled:  true,
	})
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
}
