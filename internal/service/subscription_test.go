package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/config"
	"github.com/splitfair/splitfair/internal/domain/plancatalog"
	"github.com/splitfair/splitfair/internal/domain/subscription"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/paypal"
	"github.com/splitfair/splitfair/internal/testutil"
	"github.com/splitfair/splitfair/internal/types"
	"github.com/stretchr/testify/suite"
)

type SubscriptionServiceSuite struct {
	suite.Suite
	ctx context.Context

	subs       *testutil.InMemorySubscriptionStore
	history    *testutil.InMemoryHistoryStore
	anomalies  *testutil.InMemoryAnomalyStore
	plans      *testutil.InMemoryPlanCatalogStore
	gateway    *testutil.FakeGateway
	dispatcher *testutil.FakeDispatcher
	clock      *testutil.FakeClock
	sleeper    *testutil.FakeSleeper

	service SubscriptionService
}

func TestSubscriptionServiceSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.subs = testutil.NewInMemorySubscriptionStore()
	s.history = testutil.NewInMemoryHistoryStore()
	s.anomalies = testutil.NewInMemoryAnomalyStore()
	s.plans = testutil.NewInMemoryPlanCatalogStore()
	s.gateway = testutil.NewFakeGateway()
	s.dispatcher = testutil.NewFakeDispatcher()
	s.clock = testutil.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	s.sleeper = &testutil.FakeSleeper{}

	cfg := &config.Configuration{
		Cache: config.CacheConfig{Enabled: true, SyncTTL: 5 * time.Minute},
		PayPal: config.PayPalConfig{
			ReturnURL: "https://app.test/return",
			CancelURL: "https://app.test/cancel",
			ProductID: "PROD-1",
		},
	}
	log := testutil.NewTestLogger()
	c := cache.NewInMemoryCache(cfg)

	planService := NewPlanService(s.plans, s.gateway, cfg, c, log)
	s.service = NewSubscriptionService(
		s.subs, s.history, s.anomalies, planService, s.gateway,
		s.dispatcher, c, s.clock, s.sleeper, cfg, log,
	)

	s.seedCatalog()
}

func (s *SubscriptionServiceSuite) seedCatalog() {
	s.Require().NoError(s.plans.Create(s.ctx, &plancatalog.PlanCatalogEntry{
		ID:           "plan_monthly",
		PlanType:     types.PlanTypeMonthly,
		Price:        decimal.NewFromFloat(4.99),
		Currency:     "EUR",
		Interval:     types.BillingIntervalMonth,
		RemotePlanID: "P-MONTHLY",
		Enabled:      true,
	}))
	s.Require().NoError(s.plans.Create(s.ctx, &plancatalog.PlanCatalogEntry{
		ID:       "plan_lifetime",
		PlanType: types.PlanTypeLifetime,
		Price:    decimal.NewFromFloat(79),
		Currency: "EUR",
		Enabled:  true,
	}))
}

func (s *SubscriptionServiceSuite) seedSubscription(status types.SubscriptionStatus, mutate func(*subscription.Subscription)) *subscription.Subscription {
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OwnerID:            "owner_1",
		RemoteID:           "I-REMOTE",
		PlanType:           types.PlanTypeMonthly,
		SubscriptionStatus: status,
		CurrentPeriodStart: s.clock.Now().Add(-10 * 24 * time.Hour),
		Version:            1,
	}
	end := s.clock.Now().Add(20 * 24 * time.Hour)
	sub.CurrentPeriodEnd = &end
	sub.CreatedAt = s.clock.Now()
	if mutate != nil {
		mutate(sub)
	}
	s.Require().NoError(s.subs.Create(s.ctx, sub))
	return sub
}

func (s *SubscriptionServiceSuite) TestCreateCheckoutRecurring() {
	session, err := s.service.CreateCheckout(s.ctx, "owner_1", types.PlanTypeMonthly, "buyer@example.com")
	s.Require().NoError(err)
	s.NotEmpty(session.SubscriptionID)
	s.Equal("https://provider.test/approve", session.ApprovalURL)

	sub, err := s.subs.Get(s.ctx, session.SubscriptionID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusApprovalPending, sub.SubscriptionStatus)
	s.NotEmpty(sub.RemoteID)

	entries, err := s.history.ListBySubscription(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(types.HistoryEventCreated, entries[0].EventType)
}

func (s *SubscriptionServiceSuite) TestCreateCheckoutLifetimeCreatesOrder() {
	session, err := s.service.CreateCheckout(s.ctx, "owner_1", types.PlanTypeLifetime, "")
	s.Require().NoError(err)
	s.Equal("https://provider.test/approve-order", session.ApprovalURL)

	sub, err := s.subs.Get(s.ctx, session.SubscriptionID)
	s.Require().NoError(err)
	s.Equal("ORDER-1", sub.RemoteID)
	s.Equal(types.PlanTypeLifetime, sub.PlanType)
}

func (s *SubscriptionServiceSuite) TestCreateCheckoutRejectsExistingSubscription() {
	s.seedSubscription(types.SubscriptionStatusActive, nil)

	_, err := s.service.CreateCheckout(s.ctx, "owner_1", types.PlanTypeMonthly, "")
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestActivateApprovalAloneNeverActivates() {
	sub := s.seedSubscription(types.SubscriptionStatusApprovalPending, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusApproved)

	activated, err := s.service.Activate(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusApproved, activated.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestActivateBecomesActiveWhenProviderSaysSo() {
	sub := s.seedSubscription(types.SubscriptionStatusApprovalPending, nil)
	s.gateway.RemoteSubscriptions[sub.RemoteID] = &paypal.RemoteSubscription{
		ID:         sub.RemoteID,
		Status:     paypal.RemoteStatusActive,
		Subscriber: &paypal.Subscriber{PayerID: "PAYER-9"},
	}

	activated, err := s.service.Activate(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, activated.SubscriptionStatus)
	s.Equal("PAYER-9", activated.PayerRef)

	events := s.dispatcher.Dispatched()
	s.Require().Len(events, 1)
	s.Equal(types.HistoryEventActivated, events[0].EventType)
}

func (s *SubscriptionServiceSuite) TestActivateRetriesStaleExpiredOnce() {
	sub := s.seedSubscription(types.SubscriptionStatusApprovalPending, nil)
	s.gateway.QueueRemoteStatus(sub.RemoteID, paypal.RemoteStatusExpired)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusActive)

	activated, err := s.service.Activate(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, activated.SubscriptionStatus)
	s.Len(s.sleeper.Sleeps, 1)
	s.Equal(2, s.gateway.GetCalls[sub.RemoteID])
}

func (s *SubscriptionServiceSuite) TestActivateGivesUpAfterSingleRetry() {
	sub := s.seedSubscription(types.SubscriptionStatusApprovalPending, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusExpired)

	_, err := s.service.Activate(s.ctx, sub.ID)
	s.Require().Error(err)
	s.True(ierr.IsTerminalState(err))
	s.Len(s.sleeper.Sleeps, 1)
	s.Equal(2, s.gateway.GetCalls[sub.RemoteID])
}

func (s *SubscriptionServiceSuite) TestActivateLifetimeCapturesOrder() {
	sub := s.seedSubscription(types.SubscriptionStatusApprovalPending, func(sub *subscription.Subscription) {
		sub.PlanType = types.PlanTypeLifetime
		sub.RemoteID = "ORDER-7"
		sub.CurrentPeriodEnd = nil
	})
	s.gateway.Orders["ORDER-7"] = &paypal.RemoteOrder{
		ID:     "ORDER-7",
		Status: "COMPLETED",
		Payer:  &paypal.Payer{PayerID: "PAYER-7"},
	}

	activated, err := s.service.Activate(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, activated.SubscriptionStatus)
	s.Equal("PAYER-7", activated.PayerRef)
	s.Equal([]string{"ORDER-7"}, s.gateway.CaptureCalls)
	s.Nil(activated.CurrentPeriodEnd)
}

func (s *SubscriptionServiceSuite) TestSyncRemoteActiveForcesLocalActive() {
	sub := s.seedSubscription(types.SubscriptionStatusSuspended, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusActive)

	synced, err := s.service.Sync(s.ctx, sub.ID, "WH-1", types.TransitionSourceWebhook)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, synced.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestSyncRemoteActiveHealsPrematureExpiry() {
	// Date-only expiry fired locally but the provider still bills; the
	// provider's view wins
	sub := s.seedSubscription(types.SubscriptionStatusExpired, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusActive)

	synced, err := s.service.Sync(s.ctx, sub.ID, "WH-2", types.TransitionSourceWebhook)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, synced.SubscriptionStatus)

	count, err := s.history.CountBySubscription(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *SubscriptionServiceSuite) TestSyncKeepsCancelledWhenRemoteExpires() {
	sub := s.seedSubscription(types.SubscriptionStatusCancelled, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusExpired)

	synced, err := s.service.Sync(s.ctx, sub.ID, "WH-2", types.TransitionSourceWebhook)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, synced.SubscriptionStatus)
	s.Empty(s.dispatcher.Dispatched())
}

func (s *SubscriptionServiceSuite) TestSyncPollsAreIdempotent() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusActive)

	_, err := s.service.Sync(s.ctx, sub.ID, "", types.TransitionSourcePeriodicPull)
	s.Require().NoError(err)
	_, err = s.service.Sync(s.ctx, sub.ID, "", types.TransitionSourcePeriodicPull)
	s.Require().NoError(err)

	count, err := s.history.CountBySubscription(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *SubscriptionServiceSuite) TestSyncFilesAnomalyOnCapturedPaymentAfterLapse() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusExpired)
	txnTime := s.clock.Now().Add(-48 * time.Hour)
	s.gateway.Transactions[sub.RemoteID] = []paypal.Transaction{
		{ID: "TXN-1", Status: paypal.TransactionStatusCompleted, Time: &txnTime},
	}

	synced, err := s.service.Sync(s.ctx, sub.ID, "WH-3", types.TransitionSourceWebhook)
	s.Require().NoError(err)
	// The anomaly never blocks the transition
	s.Equal(types.SubscriptionStatusExpired, synced.SubscriptionStatus)

	open, err := s.anomalies.ListOpen(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(sub.ID, open[0].SubscriptionID)
	s.Equal("TXN-1", open[0].TransactionID)
	s.Contains(open[0].ReferenceCode, "AN-")
}

func (s *SubscriptionServiceSuite) TestSyncNoAnomalyWithoutCapturedPayment() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusExpired)

	synced, err := s.service.Sync(s.ctx, sub.ID, "WH-4", types.TransitionSourceWebhook)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusExpired, synced.SubscriptionStatus)

	open, err := s.anomalies.ListOpen(s.ctx)
	s.Require().NoError(err)
	s.Empty(open)
}

func (s *SubscriptionServiceSuite) TestDuplicateWebhookDeliveryAbsorbed() {
	sub := s.seedSubscription(types.SubscriptionStatusApprovalPending, nil)
	s.gateway.SetRemoteStatus(sub.RemoteID, paypal.RemoteStatusActive)

	event := &paypal.WebhookEvent{
		ID:        "WH-EVT-1",
		EventType: paypal.EventSubscriptionActivated,
	}
	event.Resource.ID = sub.RemoteID

	s.Require().NoError(s.service.HandleWebhookEvent(s.ctx, event))
	s.Require().NoError(s.service.HandleWebhookEvent(s.ctx, event))

	count, err := s.history.CountBySubscription(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
	s.Len(s.dispatcher.Dispatched(), 1)
}

func (s *SubscriptionServiceSuite) TestWebhookForUnknownSubscriptionAcknowledged() {
	event := &paypal.WebhookEvent{
		ID:        "WH-EVT-2",
		EventType: paypal.EventSubscriptionCancelled,
	}
	event.Resource.ID = "I-UNKNOWN"

	s.Require().NoError(s.service.HandleWebhookEvent(s.ctx, event))
}

func (s *SubscriptionServiceSuite) TestWebhookIgnoresUnhandledEventTypes() {
	event := &paypal.WebhookEvent{
		ID:        "WH-EVT-3",
		EventType: "CUSTOMER.DISPUTE.CREATED",
	}
	s.Require().NoError(s.service.HandleWebhookEvent(s.ctx, event))
}

func (s *SubscriptionServiceSuite) TestCheckAndExpirePeriodPassed() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, func(sub *subscription.Subscription) {
		end := s.clock.Now().Add(-48 * time.Hour)
		sub.CurrentPeriodEnd = &end
	})

	expired, err := s.service.CheckAndExpireIfPeriodPassed(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusExpired, expired.SubscriptionStatus)

	// Re-running with the same observed period is a no-op
	again, err := s.service.CheckAndExpireIfPeriodPassed(s.ctx, expired)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusExpired, again.SubscriptionStatus)

	count, err := s.history.CountBySubscription(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *SubscriptionServiceSuite) TestCheckAndExpireHonorsScheduledCancellation() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, func(sub *subscription.Subscription) {
		end := s.clock.Now().Add(-48 * time.Hour)
		sub.CurrentPeriodEnd = &end
		sub.CancelAtPeriodEnd = true
	})

	result, err := s.service.CheckAndExpireIfPeriodPassed(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, result.SubscriptionStatus)
	s.NotNil(result.CanceledAt)
}

func (s *SubscriptionServiceSuite) TestCheckAndExpireIsDateGranular() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, func(sub *subscription.Subscription) {
		// Earlier today: the date has not passed yet
		end := s.clock.Now().Add(-2 * time.Hour)
		sub.CurrentPeriodEnd = &end
	})

	result, err := s.service.CheckAndExpireIfPeriodPassed(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, result.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestCancelImmediate() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, nil)

	cancelled, err := s.service.Cancel(s.ctx, sub.ID, true, "too expensive")
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, cancelled.SubscriptionStatus)
	s.NotNil(cancelled.CanceledAt)
	s.Equal([]string{sub.RemoteID}, s.gateway.CancelCalls)
}

func (s *SubscriptionServiceSuite) TestCancelDeferredThenResume() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, nil)

	flagged, err := s.service.Cancel(s.ctx, sub.ID, false, "")
	s.Require().NoError(err)
	s.True(flagged.CancelAtPeriodEnd)
	s.Equal(types.SubscriptionStatusActive, flagged.SubscriptionStatus)
	s.Empty(s.gateway.CancelCalls)

	resumed, err := s.service.Resume(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.False(resumed.CancelAtPeriodEnd)

	_, err = s.service.Resume(s.ctx, sub.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SubscriptionServiceSuite) TestCancelTerminalRejected() {
	sub := s.seedSubscription(types.SubscriptionStatusExpired, nil)

	_, err := s.service.Cancel(s.ctx, sub.ID, true, "")
	s.Require().Error(err)
	s.True(ierr.IsTerminalState(err))
}

func (s *SubscriptionServiceSuite) TestGetActiveSubscriptionSyncsPendingApproval() {
	sub := s.seedSubscription(types.SubscriptionStatusApprovalPending, nil)
	s.gateway.RemoteSubscriptions[sub.RemoteID] = &paypal.RemoteSubscription{
		ID:         sub.RemoteID,
		Status:     paypal.RemoteStatusActive,
		Subscriber: &paypal.Subscriber{PayerID: "PAYER-1"},
	}

	current, err := s.service.GetActiveSubscription(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, current.SubscriptionStatus)
	s.Equal("PAYER-1", current.PayerRef)
}

func (s *SubscriptionServiceSuite) TestGetActiveSubscriptionServesLocalOnSyncFailure() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, func(sub *subscription.Subscription) {
		sub.PayerRef = "PAYER-1"
	})
	s.gateway.Err = ierr.NewError("provider down").Mark(ierr.ErrRemoteProvider)

	current, err := s.service.GetActiveSubscription(s.ctx, "owner_1")
	s.Require().NoError(err)
	s.Equal(sub.ID, current.ID)
	s.Equal(types.SubscriptionStatusActive, current.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestGetActiveSubscriptionTerminalIsNotFound() {
	s.seedSubscription(types.SubscriptionStatusCancelled, nil)

	_, err := s.service.GetActiveSubscription(s.ctx, "owner_1")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestSyncDueSubscriptionsSkipsFresh() {
	sub := s.seedSubscription(types.SubscriptionStatusActive, nil)
	s.gateway.RemoteSubscriptions[sub.RemoteID] = &paypal.RemoteSubscription{
		ID:         sub.RemoteID,
		Status:     paypal.RemoteStatusActive,
		Subscriber: &paypal.Subscriber{PayerID: "PAYER-5"},
	}

	count, err := s.service.SyncDueSubscriptions(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)

	// Second pull inside the TTL is a no-op
	count, err = s.service.SyncDueSubscriptions(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)
}
