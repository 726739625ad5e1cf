package service

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/domain/entitlement"
	"github.com/splitfair/splitfair/internal/domain/subscription"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/types"
)

const entitlementCacheTTL = 10 * time.Minute

// UsageCounter reports an owner's current consumption of a limited
// feature. Implemented by the product domain (groups, events) and
// injected so the resolver stays free of product tables.
type UsageCounter interface {
	CurrentUsage(ctx context.Context, ownerID string, key types.FeatureKey) (int64, error)
}

// ZeroUsageCounter reports no usage for every feature. Deployments wire
// the product domain's counter instead; this keeps limited features
// usable until they do.
type ZeroUsageCounter struct{}

func (ZeroUsageCounter) CurrentUsage(context.Context, string, types.FeatureKey) (int64, error) {
	return 0, nil
}

// LimitCheckResult is the outcome of an EnforceLimit call
type LimitCheckResult struct {
	Allowed bool             `json:"allowed"`
	Feature types.FeatureKey `json:"feature"`
	// Limit is nil for unlimited entitlements
	Limit   *int64 `json:"limit,omitempty"`
	Current int64  `json:"current"`
}

// FeatureStatus is one feature's resolved state for an owner, returned
// by the entitlement read endpoint
type FeatureStatus struct {
	Feature types.FeatureKey `json:"feature"`
	Enabled bool             `json:"enabled"`
	Limit   *int64           `json:"limit,omitempty"`
	Current int64            `json:"current"`
}

// EntitlementSummary is the full entitlement view for an owner
type EntitlementSummary struct {
	OwnerID      string                     `json:"owner_id"`
	PlanTier     types.ResolvedPlan         `json:"plan_tier"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
	Features     []FeatureStatus            `json:"features"`
}

// EntitlementService resolves an owner's effective plan tier and
// answers feature gate questions. Resolution is defensive: anything
// ambiguous resolves to FREE, unknown feature keys fail closed.
type EntitlementService interface {
	ResolvePlanTier(ctx context.Context, ownerID string) (types.ResolvedPlan, *subscription.Subscription, error)
	CheckFeature(ctx context.Context, ownerID string, key types.FeatureKey) (bool, error)
	EnforceLimit(ctx context.Context, ownerID string, key types.FeatureKey) (*LimitCheckResult, error)
	GetEntitlementSummary(ctx context.Context, ownerID string) (*EntitlementSummary, error)

	// Operator-facing catalog management
	CreateEntitlement(ctx context.Context, e *entitlement.FeatureEntitlement) (*entitlement.FeatureEntitlement, error)
	UpdateEntitlement(ctx context.Context, id string, params entitlement.UpdateParams) (*entitlement.FeatureEntitlement, error)
	ListEntitlements(ctx context.Context) ([]*entitlement.FeatureEntitlement, error)
}

type entitlementService struct {
	entitlementRepo  entitlement.Repository
	subscriptionRepo subscription.Repository
	usage            UsageCounter
	clock            subscription.Clock
	cache            cache.Cache
	log              *logger.Logger
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(
	entitlementRepo entitlement.Repository,
	subscriptionRepo subscription.Repository,
	usage UsageCounter,
	clock subscription.Clock,
	c cache.Cache,
	log *logger.Logger,
) EntitlementService {
	return &entitlementService{
		entitlementRepo:  entitlementRepo,
		subscriptionRepo: subscriptionRepo,
		usage:            usage,
		clock:            clock,
		cache:            c,
		log:              log,
	}
}

// ResolvePlanTier maps the owner's latest subscription onto an
// effective tier. An active lifetime purchase resolves to LIFETIME
// permanently. A recurring subscription resolves to PRO while it is
// ACTIVE and its paid period has not lapsed. Everything else, including
// a missing subscription, resolves to FREE.
func (s *entitlementService) ResolvePlanTier(ctx context.Context, ownerID string) (types.ResolvedPlan, *subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.GetLatestForOwner(ctx, ownerID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return types.ResolvedPlanFree, nil, nil
		}
		return types.ResolvedPlanFree, nil, err
	}

	if sub.SubscriptionStatus != types.SubscriptionStatusActive {
		return types.ResolvedPlanFree, sub, nil
	}

	if sub.PlanType == types.PlanTypeLifetime {
		return types.ResolvedPlanLifetime, sub, nil
	}

	if sub.PeriodPassed(s.clock.Now()) {
		return types.ResolvedPlanFree, sub, nil
	}
	return types.ResolvedPlanPro, sub, nil
}

// CheckFeature answers a boolean feature gate. Limited features answer
// true only when the entitlement is unlimited; bounded limits go
// through EnforceLimit with live usage.
func (s *entitlementService) CheckFeature(ctx context.Context, ownerID string, key types.FeatureKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}

	tier, _, err := s.ResolvePlanTier(ctx, ownerID)
	if err != nil {
		return false, err
	}

	e, err := s.entitlementForTier(ctx, tier, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if !e.IsEnabled {
		return false, nil
	}
	return !e.IsLimited(), nil
}

// EnforceLimit checks whether one more unit of the feature is allowed
// for the owner. Usage strictly below the limit is allowed; usage at
// the limit is not.
func (s *entitlementService) EnforceLimit(ctx context.Context, ownerID string, key types.FeatureKey) (*LimitCheckResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	tier, _, err := s.ResolvePlanTier(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	e, err := s.entitlementForTier(ctx, tier, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return &LimitCheckResult{Allowed: false, Feature: key}, nil
		}
		return nil, err
	}

	if !e.IsEnabled {
		return &LimitCheckResult{Allowed: false, Feature: key, Limit: e.LimitValue}, nil
	}
	if !e.IsLimited() {
		return &LimitCheckResult{Allowed: true, Feature: key}, nil
	}

	current, err := s.usage.CurrentUsage(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}

	return &LimitCheckResult{
		Allowed: current < *e.LimitValue,
		Feature: key,
		Limit:   e.LimitValue,
		Current: current,
	}, nil
}

// GetEntitlementSummary resolves the owner's tier once and fans out
// usage lookups for every limited feature concurrently.
func (s *entitlementService) GetEntitlementSummary(ctx context.Context, ownerID string) (*EntitlementSummary, error) {
	tier, sub, err := s.ResolvePlanTier(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	entitlements, err := s.listForTier(ctx, tier)
	if err != nil {
		return nil, err
	}

	byKey := make(map[types.FeatureKey]*entitlement.FeatureEntitlement, len(entitlements))
	for _, e := range entitlements {
		byKey[e.FeatureKey] = e
	}

	features := make([]FeatureStatus, len(types.AllFeatureKeys()))
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, key := range types.AllFeatureKeys() {
		i, key := i, key
		p.Go(func(ctx context.Context) error {
			status := FeatureStatus{Feature: key}
			if e, ok := byKey[key]; ok {
				status.Enabled = e.IsEnabled
				status.Limit = e.LimitValue
				if e.IsEnabled && e.IsLimited() {
					current, err := s.usage.CurrentUsage(ctx, ownerID, key)
					if err != nil {
						return err
					}
					status.Current = current
				}
			}
			features[i] = status
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return &EntitlementSummary{
		OwnerID:      ownerID,
		PlanTier:     tier,
		Subscription: sub,
		Features:     features,
	}, nil
}

func (s *entitlementService) CreateEntitlement(ctx context.Context, e *entitlement.FeatureEntitlement) (*entitlement.FeatureEntitlement, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT)
	}
	e.BaseModel = types.GetDefaultBaseModel(ctx)

	if err := s.entitlementRepo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return e, nil
}

func (s *entitlementService) UpdateEntitlement(ctx context.Context, id string, params entitlement.UpdateParams) (*entitlement.FeatureEntitlement, error) {
	updated, err := s.entitlementRepo.Update(ctx, id, params)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *entitlementService) ListEntitlements(ctx context.Context) ([]*entitlement.FeatureEntitlement, error) {
	return s.entitlementRepo.List(ctx)
}

func (s *entitlementService) entitlementForTier(ctx context.Context, tier types.ResolvedPlan, key types.FeatureKey) (*entitlement.FeatureEntitlement, error) {
	entitlements, err := s.listForTier(ctx, tier)
	if err != nil {
		return nil, err
	}
	for _, e := range entitlements {
		if e.FeatureKey == key {
			return e, nil
		}
	}
	return nil, ierr.NewError("no entitlement configured").
		WithHint("No entitlement configured for this plan and feature").
		WithReportableDetails(map[string]any{
			"plan_tier":   tier,
			"feature_key": key,
		}).
		Mark(ierr.ErrNotFound)
}

// listForTier serves the per-tier entitlement rows from cache;
// reference data changes rarely and only through the operator CRUD,
// which invalidates the prefix.
func (s *entitlementService) listForTier(ctx context.Context, tier types.ResolvedPlan) ([]*entitlement.FeatureEntitlement, error) {
	key := cache.GenerateKey(cache.PrefixEntitlement, tier)
	if v, ok := s.cache.Get(ctx, key); ok {
		if cached, ok := v.([]*entitlement.FeatureEntitlement); ok {
			return cached, nil
		}
	}

	entitlements, err := s.entitlementRepo.ListByPlan(ctx, tier)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, entitlements, entitlementCacheTTL)
	return entitlements, nil
}

func (s *entitlementService) invalidate(ctx context.Context) {
	s.cache.DeleteByPrefix(ctx, cache.PrefixEntitlement)
}
