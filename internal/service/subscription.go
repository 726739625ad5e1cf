package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc/pool"
	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/config"
	"github.com/splitfair/splitfair/internal/domain/anomaly"
	"github.com/splitfair/splitfair/internal/domain/billinghistory"
	"github.com/splitfair/splitfair/internal/domain/subscription"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/idempotency"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/notification"
	"github.com/splitfair/splitfair/internal/paypal"
	"github.com/splitfair/splitfair/internal/types"
)

const (
	// activationRetryDelay is the pause before the single re-check when
	// the provider still reports a stale status right after approval
	activationRetryDelay = 2 * time.Second

	// anomalyLookback is how far back transactions are searched when a
	// lapsed subscription shows signs of a captured payment
	anomalyLookback = 30 * 24 * time.Hour

	// syncPullConcurrency bounds the periodic pull fan-out
	syncPullConcurrency = 8

	orderStatusCompleted = "COMPLETED"
)

// Sleeper abstracts the retry pause so activation tests run without
// waiting
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper blocks on the wall clock
type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// CheckoutSession is returned by CreateCheckout; the frontend redirects
// the buyer to ApprovalURL.
type CheckoutSession struct {
	SubscriptionID string         `json:"subscription_id"`
	PlanType       types.PlanType `json:"plan_type"`
	ApprovalURL    string         `json:"approval_url"`
}

// SubscriptionService is the reconciliation engine: the only writer of
// subscription rows. It merges local state with the remote provider's
// view, appends the history ledger, and dispatches transition
// notifications.
type SubscriptionService interface {
	CreateCheckout(ctx context.Context, ownerID string, planType types.PlanType, email string) (*CheckoutSession, error)
	Activate(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, ownerID string) (*subscription.Subscription, error)
	Cancel(ctx context.Context, subscriptionID string, immediate bool, reason string) (*subscription.Subscription, error)
	Resume(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	Sync(ctx context.Context, subscriptionID, externalEventID string, source types.TransitionSource) (*subscription.Subscription, error)
	CheckAndExpireIfPeriodPassed(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error)
	HandleWebhookEvent(ctx context.Context, event *paypal.WebhookEvent) error
	SyncDueSubscriptions(ctx context.Context) (int, error)
	ListHistory(ctx context.Context, subscriptionID string) ([]*billinghistory.HistoryEntry, error)
}

type subscriptionService struct {
	subscriptionRepo subscription.Repository
	historyRepo      billinghistory.Repository
	anomalyRepo      anomaly.Repository
	plans            PlanService
	gateway          paypal.Gateway
	dispatcher       notification.Dispatcher
	idempotency      *idempotency.Generator
	cache            cache.Cache
	clock            subscription.Clock
	sleeper          Sleeper
	cfg              *config.Configuration
	log              *logger.Logger
}

// NewSubscriptionService creates the reconciliation engine
func NewSubscriptionService(
	subscriptionRepo subscription.Repository,
	historyRepo billinghistory.Repository,
	anomalyRepo anomaly.Repository,
	plans PlanService,
	gateway paypal.Gateway,
	dispatcher notification.Dispatcher,
	c cache.Cache,
	clock subscription.Clock,
	sleeper Sleeper,
	cfg *config.Configuration,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		historyRepo:      historyRepo,
		anomalyRepo:      anomalyRepo,
		plans:            plans,
		gateway:          gateway,
		dispatcher:       dispatcher,
		idempotency:      idempotency.NewGenerator(),
		cache:            c,
		clock:            clock,
		sleeper:          sleeper,
		cfg:              cfg,
		log:              log,
	}
}

// CreateCheckout initiates a purchase. Recurring plans create a remote
// subscription awaiting buyer approval; lifetime plans create a
// capture-intent order. Either way a local APPROVAL_PENDING row is
// created before the session is returned.
func (s *subscriptionService) CreateCheckout(ctx context.Context, ownerID string, planType types.PlanType, email string) (*CheckoutSession, error) {
	if ownerID == "" {
		return nil, ierr.NewError("owner_id is required").
			WithHint("Please provide a valid owner ID").
			Mark(ierr.ErrValidation)
	}
	if err := planType.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.subscriptionRepo.GetLatestForOwner(ctx, ownerID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && !existing.IsTerminal() &&
		existing.SubscriptionStatus != types.SubscriptionStatusApprovalPending {
		return nil, ierr.NewError("owner already has a subscription").
			WithHint("Cancel the current subscription before purchasing a new one").
			WithReportableDetails(map[string]any{
				"subscription_id": existing.ID,
				"status":          existing.SubscriptionStatus,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	entry, err := s.plans.GetPlan(ctx, planType)
	if err != nil {
		return nil, err
	}
	if !entry.Enabled {
		return nil, ierr.NewError("plan is not available for purchase").
			WithHint("This plan is currently disabled").
			Mark(ierr.ErrInvalidOperation)
	}

	now := s.clock.Now()
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OwnerID:            ownerID,
		PlanType:           planType,
		SubscriptionStatus: types.SubscriptionStatusApprovalPending,
		CurrentPeriodStart: now,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	sub.Version = 1

	var approvalURL string
	if planType.IsRecurring() {
		remotePlanID := entry.RemotePlanID
		if remotePlanID == "" {
			remotePlanID, err = s.plans.EnsureRemotePlan(ctx, planType)
			if err != nil {
				return nil, err
			}
		}

		created, err := s.gateway.CreateRemoteSubscription(ctx,
			remotePlanID, s.cfg.PayPal.ReturnURL, s.cfg.PayPal.CancelURL, email)
		if err != nil {
			return nil, err
		}
		sub.RemoteID = created.RemoteID
		approvalURL = created.ApprovalURL
	} else {
		order, err := s.gateway.CreateOneTimeOrder(ctx,
			paypal.Money{CurrencyCode: entry.Currency, Value: entry.Price.StringFixed(2)},
			"SplitFair lifetime access", sub.ID)
		if err != nil {
			return nil, err
		}
		sub.RemoteID = order.ID
		approvalURL = approvalLink(order.Links)
		if approvalURL == "" {
			return nil, ierr.NewError("provider returned no approval link").
				WithHint("The payment provider response was incomplete").
				Mark(ierr.ErrRemoteProvider)
		}
	}

	if err := s.subscriptionRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, sub, "", types.SubscriptionStatusApprovalPending.String(),
		types.HistoryEventCreated, nil, sub.RemoteID, nil)

	s.log.Infow("checkout created",
		"subscription_id", sub.ID,
		"owner_id", ownerID,
		"plan_type", planType,
		"remote_id", sub.RemoteID,
	)

	return &CheckoutSession{
		SubscriptionID: sub.ID,
		PlanType:       planType,
		ApprovalURL:    approvalURL,
	}, nil
}

// Activate confirms a purchase after the buyer returns from approval.
// Recurring subscriptions are verified against the provider: approval
// alone never yields ACTIVE, only the provider reporting ACTIVE does.
// A stale EXPIRED answer is re-checked once after a short pause before
// giving up with a terminal-state error. Lifetime orders are captured.
func (s *subscriptionService) Activate(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, s.terminalError(sub)
	}
	if sub.RemoteID == "" {
		return nil, ierr.NewError("subscription has no remote reference").
			WithHint("The purchase was never initiated with the provider").
			Mark(ierr.ErrInvalidOperation)
	}

	if sub.PlanType == types.PlanTypeLifetime {
		return s.activateLifetime(ctx, sub)
	}
	return s.activateRecurring(ctx, sub)
}

func (s *subscriptionService) activateLifetime(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	order, err := s.gateway.CaptureOrder(ctx, sub.RemoteID)
	if err != nil {
		return nil, err
	}
	if order.Status != orderStatusCompleted {
		return nil, ierr.NewError("order capture did not complete").
			WithHint("The payment was not captured").
			WithReportableDetails(map[string]any{
				"order_id":     order.ID,
				"order_status": order.Status,
			}).
			Mark(ierr.ErrRemoteProvider)
	}

	target := types.SubscriptionStatusActive
	params := subscription.UpdateParams{
		SubscriptionStatus: &target,
	}
	if order.Payer != nil && order.Payer.PayerID != "" {
		params.PayerRef = &order.Payer.PayerID
	}

	return s.applyTransition(ctx, sub, target, params,
		nil, order.ID, types.TransitionSourceActivation, nil)
}

func (s *subscriptionService) activateRecurring(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	remote, err := s.gateway.GetRemoteSubscription(ctx, sub.RemoteID)
	if err != nil {
		return nil, err
	}

	target := paypal.MapRemoteStatus(remote.Status)
	if target.IsTerminal() {
		// The provider can briefly report the pre-approval record as
		// expired right after the buyer returns. One re-check after a
		// constant pause, then give up.
		retry := backoff.NewConstantBackOff(activationRetryDelay)
		s.sleeper.Sleep(retry.NextBackOff())

		remote, err = s.gateway.GetRemoteSubscription(ctx, sub.RemoteID)
		if err != nil {
			return nil, err
		}
		target = paypal.MapRemoteStatus(remote.Status)
		if target.IsTerminal() {
			return nil, ierr.NewError("remote subscription is already terminal").
				WithHint("The provider reports this subscription as expired or cancelled").
				WithReportableDetails(map[string]any{
					"remote_id":     sub.RemoteID,
					"remote_status": remote.Status,
				}).
				Mark(ierr.ErrTerminalState)
		}
	}

	if target == sub.SubscriptionStatus {
		return sub, nil
	}
	if !sub.SubscriptionStatus.CanTransitionTo(target) {
		return nil, s.invalidTransitionError(sub, target)
	}

	params := subscription.UpdateParams{
		SubscriptionStatus: &target,
	}
	s.applyRemoteDetails(&params, remote)

	return s.applyTransition(ctx, sub, target, params,
		nil, sub.RemoteID, types.TransitionSourceActivation, nil)
}

// GetActiveSubscription is the read path. It serves the owner's latest
// subscription, reconciling it with the provider first when the local
// row looks stale: still pending approval, missing its payer reference,
// active past its period end, or last synced longer than the sync TTL
// ago. Reconciliation failures are logged and the local row is served
// as-is.
func (s *subscriptionService) GetActiveSubscription(ctx context.Context, ownerID string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.GetLatestForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, ierr.NewError("no active subscription").
			WithHint("The owner's latest subscription is terminal").
			Mark(ierr.ErrNotFound)
	}

	if s.syncDue(ctx, sub) {
		synced, err := s.Sync(ctx, sub.ID, "", types.TransitionSourcePeriodicPull)
		if err != nil {
			s.log.Warnw("read-path sync failed, serving local state",
				"subscription_id", sub.ID,
				"error", err,
			)
		} else {
			sub = synced
		}
	}

	return s.CheckAndExpireIfPeriodPassed(ctx, sub)
}

// syncDue decides whether the read path should reconcile before
// serving
func (s *subscriptionService) syncDue(ctx context.Context, sub *subscription.Subscription) bool {
	if sub.RemoteID == "" {
		return false
	}
	if sub.SubscriptionStatus == types.SubscriptionStatusApprovalPending {
		return true
	}
	if sub.SubscriptionStatus == types.SubscriptionStatusActive && sub.PayerRef == "" {
		return true
	}
	if sub.SubscriptionStatus == types.SubscriptionStatusActive && sub.PeriodPassed(s.clock.Now()) {
		return true
	}
	_, fresh := s.cache.Get(ctx, cache.GenerateKey(cache.PrefixSyncState, sub.ID))
	return !fresh
}

// Cancel ends a subscription. Immediate cancellation revokes the remote
// subscription and transitions the local row to CANCELLED right away;
// deferred cancellation only flags the row so the period runs out
// naturally.
func (s *subscriptionService) Cancel(ctx context.Context, subscriptionID string, immediate bool, reason string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, s.terminalError(sub)
	}

	if !immediate {
		if sub.CancelAtPeriodEnd {
			return sub, nil
		}
		flag := true
		return s.applyTransition(ctx, sub, sub.SubscriptionStatus,
			subscription.UpdateParams{CancelAtPeriodEnd: &flag},
			eventOverride(types.HistoryEventCancelScheduled), sub.RemoteID,
			types.TransitionSourceActivation, nil)
	}

	if sub.PlanType.IsRecurring() && sub.RemoteID != "" {
		if reason == "" {
			reason = "Cancelled by user"
		}
		if err := s.gateway.CancelRemoteSubscription(ctx, sub.RemoteID, reason); err != nil {
			return nil, err
		}
	}

	target := types.SubscriptionStatusCancelled
	now := s.clock.Now()
	return s.applyTransition(ctx, sub, target, subscription.UpdateParams{
		SubscriptionStatus: &target,
		CanceledAt:         types.NewNullable(now),
	}, nil, sub.RemoteID, types.TransitionSourceActivation, nil)
}

// Resume withdraws a scheduled cancellation. It never resurrects a
// terminal subscription; a SUSPENDED one reactivates only through the
// provider reporting ACTIVE again.
func (s *subscriptionService) Resume(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, s.terminalError(sub)
	}
	if !sub.CancelAtPeriodEnd {
		return nil, ierr.NewError("subscription has no scheduled cancellation").
			WithHint("There is nothing to resume").
			Mark(ierr.ErrInvalidOperation)
	}

	flag := false
	return s.applyTransition(ctx, sub, sub.SubscriptionStatus,
		subscription.UpdateParams{CancelAtPeriodEnd: &flag},
		eventOverride(types.HistoryEventResumed), sub.RemoteID,
		types.TransitionSourceActivation, nil)
}

// Sync reconciles one subscription with the provider's current view.
// The provider reporting ACTIVE always forces local ACTIVE, even on a
// row the date-only check already expired: the provider is the system
// of record for recurring billing, so a premature local expiry heals
// here. A local ACTIVE row the provider reports EXPIRED triggers
// transaction forensics before the expiry is adopted: a captured
// payment inside the lookback window files an anomaly record, but
// never blocks the transition. Exactly one history entry is recorded
// per observed remote state; replays are absorbed by the external
// event id.
func (s *subscriptionService) Sync(ctx context.Context, subscriptionID, externalEventID string, source types.TransitionSource) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.RemoteID == "" {
		return sub, nil
	}

	remote, err := s.gateway.GetRemoteSubscription(ctx, sub.RemoteID)
	if err != nil {
		return nil, err
	}
	target := paypal.MapRemoteStatus(remote.Status)

	eventID := externalEventID
	if eventID == "" {
		// Poll-triggered syncs derive a synthetic event id from the
		// observed remote state, so two polls seeing the same state
		// collapse into one ledger entry.
		eventID = s.idempotency.GenerateKey(idempotency.ScopeSync, map[string]interface{}{
			"remote_id":  sub.RemoteID,
			"status":     remote.Status,
			"period_end": remoteNextBilling(remote),
		})
	}

	seen, err := s.historyRepo.ExistsByExternalEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if seen {
		s.markSynced(ctx, sub.ID)
		return sub, nil
	}

	statusChanged := target != sub.SubscriptionStatus
	if statusChanged && target != types.SubscriptionStatusActive &&
		!sub.SubscriptionStatus.CanTransitionTo(target) {
		s.log.Warnw("remote state not adoptable, keeping local status",
			"subscription_id", sub.ID,
			"local_status", sub.SubscriptionStatus,
			"remote_status", remote.Status,
			"source", source,
			"authority", source.Authority(),
		)
		statusChanged = false
	}

	if statusChanged &&
		sub.SubscriptionStatus == types.SubscriptionStatusActive &&
		target == types.SubscriptionStatusExpired {
		s.investigateLapsedPayment(ctx, sub)
	}

	now := s.clock.Now()
	params := subscription.UpdateParams{LastSyncedAt: &now}
	if statusChanged {
		params.SubscriptionStatus = &target
	}
	s.applyRemoteDetails(&params, remote)

	newStatus := sub.SubscriptionStatus
	if statusChanged {
		newStatus = target
	}
	updated, err := s.applyTransition(ctx, sub, newStatus, params,
		syncEventFor(statusChanged, target), eventID, source, remote)
	if err != nil {
		return nil, err
	}

	s.markSynced(ctx, updated.ID)
	return updated, nil
}

// CheckAndExpireIfPeriodPassed applies the date-only local expiration
// rule: once the paid period's end date is strictly in the past, the
// subscription moves to CANCELLED (when cancellation was scheduled) or
// EXPIRED, without waiting for the provider to say so.
func (s *subscriptionService) CheckAndExpireIfPeriodPassed(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	if sub.IsTerminal() {
		return sub, nil
	}
	end := sub.EffectivePeriodEnd()
	if end == nil || !dateBefore(*end, s.clock.Now()) {
		return sub, nil
	}

	target := types.SubscriptionStatusExpired
	if sub.CancelAtPeriodEnd {
		target = types.SubscriptionStatusCancelled
	}
	if !sub.SubscriptionStatus.CanTransitionTo(target) {
		return sub, nil
	}

	eventID := s.idempotency.GenerateKey(idempotency.ScopeLocalExpiry, map[string]interface{}{
		"subscription_id": sub.ID,
		"period_end":      end.UTC().Format(time.RFC3339),
		"target":          target.String(),
	})
	seen, err := s.historyRepo.ExistsByExternalEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if seen {
		return s.subscriptionRepo.Get(ctx, sub.ID)
	}

	params := subscription.UpdateParams{SubscriptionStatus: &target}
	if target == types.SubscriptionStatusCancelled {
		now := s.clock.Now()
		params.CanceledAt = types.NewNullable(now)
	}

	return s.applyTransition(ctx, sub, target, params,
		nil, eventID, types.TransitionSourceLocalExpiry, nil)
}

// HandleWebhookEvent routes a verified provider event into the
// reconciliation engine. Duplicate deliveries are absorbed by the event
// id; events for unknown subscriptions are acknowledged and dropped.
func (s *subscriptionService) HandleWebhookEvent(ctx context.Context, event *paypal.WebhookEvent) error {
	if event.ID == "" {
		return ierr.NewError("webhook event has no id").
			WithHint("The event envelope is malformed").
			Mark(ierr.ErrValidation)
	}

	switch event.EventType {
	case paypal.EventSubscriptionActivated,
		paypal.EventSubscriptionCancelled,
		paypal.EventSubscriptionSuspended,
		paypal.EventSubscriptionExpired,
		paypal.EventPaymentFailed,
		paypal.EventSaleCompleted:
	default:
		s.log.Debugw("ignoring unhandled webhook event type",
			"event_id", event.ID,
			"event_type", event.EventType,
		)
		return nil
	}

	seen, err := s.historyRepo.ExistsByExternalEventID(ctx, event.ID)
	if err != nil {
		return err
	}
	if seen {
		s.log.Infow("duplicate webhook delivery absorbed",
			"event_id", event.ID,
			"event_type", event.EventType,
		)
		return nil
	}

	remoteID := event.SubscriptionID()
	sub, err := s.subscriptionRepo.GetByRemoteID(ctx, remoteID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.log.Warnw("webhook references unknown subscription",
				"event_id", event.ID,
				"remote_id", remoteID,
			)
			return nil
		}
		return err
	}

	_, err = s.Sync(ctx, sub.ID, event.ID, types.TransitionSourceWebhook)
	if ierr.IsVersionConflict(err) || ierr.IsAlreadyExists(err) {
		// A concurrent writer already applied this state
		return nil
	}
	return err
}

// SyncDueSubscriptions is the periodic pull: every non-terminal
// subscription whose sync TTL elapsed is reconciled. Per-subscription
// failures are logged and skipped; the pull never aborts as a whole.
func (s *subscriptionService) SyncDueSubscriptions(ctx context.Context) (int, error) {
	subs, err := s.subscriptionRepo.ListNonTerminal(ctx)
	if err != nil {
		return 0, err
	}

	synced := make(chan string, len(subs))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(syncPullConcurrency)
	for _, sub := range subs {
		sub := sub
		p.Go(func(ctx context.Context) error {
			if !s.syncDue(ctx, sub) {
				return nil
			}
			if _, err := s.Sync(ctx, sub.ID, "", types.TransitionSourcePeriodicPull); err != nil {
				s.log.Warnw("periodic pull failed for subscription",
					"subscription_id", sub.ID,
					"error", err,
				)
				return nil
			}
			synced <- sub.ID
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return 0, err
	}
	close(synced)

	count := 0
	for range synced {
		count++
	}
	s.log.Infow("periodic pull finished",
		"candidates", len(subs),
		"synced", count,
	)
	return count, nil
}

func (s *subscriptionService) ListHistory(ctx context.Context, subscriptionID string) ([]*billinghistory.HistoryEntry, error) {
	if _, err := s.subscriptionRepo.Get(ctx, subscriptionID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListBySubscription(ctx, subscriptionID)
}

// applyTransition persists the update with optimistic locking, appends
// the ledger entry, and dispatches the notification. The ledger insert
// is the idempotency gate: a duplicate external event id suppresses the
// notification. On a version conflict the concurrent writer's result is
// returned instead.
func (s *subscriptionService) applyTransition(
	ctx context.Context,
	sub *subscription.Subscription,
	newStatus types.SubscriptionStatus,
	params subscription.UpdateParams,
	event *types.HistoryEventType,
	externalID string,
	source types.TransitionSource,
	remote *paypal.RemoteSubscription,
) (*subscription.Subscription, error) {
	updated, err := s.subscriptionRepo.Update(ctx, sub.ID, sub.Version, params)
	if err != nil {
		if ierr.IsVersionConflict(err) {
			s.log.Warnw("transition lost the write race",
				"subscription_id", sub.ID,
				"source", source,
				"authority", source.Authority(),
			)
			return s.subscriptionRepo.Get(ctx, sub.ID)
		}
		return nil, err
	}

	eventType := types.HistoryEventForStatus(newStatus)
	if event != nil {
		eventType = *event
	}

	recorded := s.appendHistory(ctx, updated,
		sub.SubscriptionStatus.String(), newStatus.String(),
		eventType, externalEventIDPtr(externalID, source), externalResourceID(sub, remote),
		map[string]string{"source": source.String()})

	s.cache.Delete(ctx, cache.GenerateKey(cache.PrefixSubscription, updated.OwnerID))
	s.cache.DeleteByPrefix(ctx, cache.PrefixEntitlement)

	if recorded && eventType != types.HistoryEventSynced {
		s.dispatcher.Dispatch(ctx, eventType, updated)
	}
	return updated, nil
}

// appendHistory inserts a ledger row. A duplicate external event id is
// absorbed silently and reported as not-recorded so the caller skips
// the notification.
func (s *subscriptionService) appendHistory(
	ctx context.Context,
	sub *subscription.Subscription,
	oldValue, newValue string,
	eventType types.HistoryEventType,
	externalEventID *string,
	resourceID string,
	metadata map[string]string,
) bool {
	entry := &billinghistory.HistoryEntry{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_HISTORY),
		SubscriptionID:     sub.ID,
		EventType:          eventType,
		OldValue:           oldValue,
		NewValue:           newValue,
		ExternalEventID:    externalEventID,
		ExternalResourceID: resourceID,
		Metadata:           metadata,
		CreatedAt:          s.clock.Now(),
		CreatedBy:          types.GetUserID(ctx),
	}

	if err := s.historyRepo.Create(ctx, entry); err != nil {
		if ierr.IsAlreadyExists(err) {
			return false
		}
		s.log.Errorw("failed to append history entry",
			"subscription_id", sub.ID,
			"event_type", eventType,
			"error", err,
		)
		return false
	}
	return true
}

// investigateLapsedPayment looks for a captured payment on a
// subscription the provider just reported expired. A hit files an
// anomaly record for operator remediation; it never blocks the expiry.
func (s *subscriptionService) investigateLapsedPayment(ctx context.Context, sub *subscription.Subscription) {
	now := s.clock.Now()
	txns, err := s.gateway.ListTransactions(ctx, sub.RemoteID, now.Add(-anomalyLookback), now)
	if err != nil {
		s.log.Warnw("transaction forensics failed",
			"subscription_id", sub.ID,
			"error", err,
		)
		return
	}

	for _, txn := range txns {
		if txn.Status != paypal.TransactionStatusCompleted {
			continue
		}

		record := &anomaly.Anomaly{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ANOMALY),
			ReferenceCode:  types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_ANOMALY),
			SubscriptionID: sub.ID,
			OwnerID:        sub.OwnerID,
			Kind:           anomaly.KindPaymentCapturedSubscriptionLapsed,
			Description:    "provider reported the subscription expired but a payment was captured within the lookback window",
			TransactionID:  txn.ID,
			DetectedAt:     now,
		}
		if txn.Time != nil {
			record.Details = map[string]string{
				"transaction_time": txn.Time.UTC().Format(time.RFC3339),
			}
		}

		if err := s.anomalyRepo.Create(ctx, record); err != nil {
			s.log.Errorw("failed to persist anomaly record",
				"subscription_id", sub.ID,
				"transaction_id", txn.ID,
				"error", err,
			)
			return
		}

		s.log.Warnw("payment captured on lapsed subscription",
			"subscription_id", sub.ID,
			"reference_code", record.ReferenceCode,
			"transaction_id", txn.ID,
		)
		return
	}
}

// applyRemoteDetails copies payer and billing details from the remote
// view into the update
func (s *subscriptionService) applyRemoteDetails(params *subscription.UpdateParams, remote *paypal.RemoteSubscription) {
	if remote.Subscriber != nil && remote.Subscriber.PayerID != "" {
		params.PayerRef = &remote.Subscriber.PayerID
	}
	if next := remoteNextBilling(remote); next != nil {
		params.NextBillingTime = types.NewNullable(*next)
		params.CurrentPeriodEnd = types.NewNullable(*next)
	}
}

func (s *subscriptionService) markSynced(ctx context.Context, subscriptionID string) {
	s.cache.Set(ctx, cache.GenerateKey(cache.PrefixSyncState, subscriptionID),
		s.clock.Now(), s.cfg.Cache.SyncTTL)
}

func (s *subscriptionService) terminalError(sub *subscription.Subscription) error {
	return ierr.NewError("subscription is in a terminal state").
		WithHint("Terminal subscriptions admit no further transitions").
		WithReportableDetails(map[string]any{
			"subscription_id": sub.ID,
			"status":          sub.SubscriptionStatus,
		}).
		Mark(ierr.ErrTerminalState)
}

func (s *subscriptionService) invalidTransitionError(sub *subscription.Subscription, target types.SubscriptionStatus) error {
	return ierr.NewError("transition not allowed").
		WithHint("The subscription cannot move to the requested state").
		WithReportableDetails(map[string]any{
			"subscription_id": sub.ID,
			"from":            sub.SubscriptionStatus,
			"to":              target,
		}).
		Mark(ierr.ErrInvalidOperation)
}

func approvalLink(links []paypal.Link) string {
	for _, link := range links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

func remoteNextBilling(remote *paypal.RemoteSubscription) *time.Time {
	if remote.BillingInfo == nil {
		return nil
	}
	return remote.BillingInfo.NextBillingTime
}

// dateBefore compares calendar dates in UTC, ignoring time of day. A
// period ending today has not lapsed yet.
func dateBefore(end, now time.Time) bool {
	ey, em, ed := end.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	endDate := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	nowDate := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return endDate.Before(nowDate)
}

func eventOverride(e types.HistoryEventType) *types.HistoryEventType {
	return &e
}

func syncEventFor(statusChanged bool, target types.SubscriptionStatus) *types.HistoryEventType {
	if statusChanged {
		return nil
	}
	return eventOverride(types.HistoryEventSynced)
}

func externalEventIDPtr(id string, source types.TransitionSource) *string {
	if id == "" {
		return nil
	}
	// Only externally sourced and derived ids participate in the
	// uniqueness gate; plain remote resource ids on user-initiated
	// transitions do not.
	switch source {
	case types.TransitionSourceWebhook, types.TransitionSourcePeriodicPull, types.TransitionSourceLocalExpiry:
		return &id
	default:
		return nil
	}
}

func externalResourceID(sub *subscription.Subscription, remote *paypal.RemoteSubscription) string {
	if remote != nil {
		return remote.ID
	}
	return sub.RemoteID
}
