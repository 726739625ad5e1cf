package service

import (
	"context"
	"time"

	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/config"
	"github.com/splitfair/splitfair/internal/domain/plancatalog"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/paypal"
	"github.com/splitfair/splitfair/internal/types"
)

const planCacheTTL = 10 * time.Minute

// PlanService manages the purchasable plan catalog and its provider-side
// billing plans.
type PlanService interface {
	ListEnabledPlans(ctx context.Context) ([]*plancatalog.PlanCatalogEntry, error)
	GetPlan(ctx context.Context, planType types.PlanType) (*plancatalog.PlanCatalogEntry, error)
	CreatePlan(ctx context.Context, entry *plancatalog.PlanCatalogEntry) (*plancatalog.PlanCatalogEntry, error)
	UpdatePlan(ctx context.Context, id string, params plancatalog.UpdateParams) (*plancatalog.PlanCatalogEntry, error)
	// EnsureRemotePlan provisions the provider-side billing plan for a
	// recurring catalog entry if it does not exist yet, and returns the
	// remote plan id.
	EnsureRemotePlan(ctx context.Context, planType types.PlanType) (string, error)
}

type planService struct {
	repo    plancatalog.Repository
	gateway paypal.Gateway
	cfg     *config.Configuration
	cache   cache.Cache
	log     *logger.Logger
}

// NewPlanService creates a new plan catalog service
func NewPlanService(
	repo plancatalog.Repository,
	gateway paypal.Gateway,
	cfg *config.Configuration,
	c cache.Cache,
	log *logger.Logger,
) PlanService {
	return &planService{
		repo:    repo,
		gateway: gateway,
		cfg:     cfg,
		cache:   c,
		log:     log,
	}
}

func (s *planService) ListEnabledPlans(ctx context.Context) ([]*plancatalog.PlanCatalogEntry, error) {
	key := cache.GenerateKey(cache.PrefixPlanCatalog, "enabled")
	if v, ok := s.cache.Get(ctx, key); ok {
		if cached, ok := v.([]*plancatalog.PlanCatalogEntry); ok {
			return cached, nil
		}
	}

	entries, err := s.repo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, entries, planCacheTTL)
	return entries, nil
}

func (s *planService) GetPlan(ctx context.Context, planType types.PlanType) (*plancatalog.PlanCatalogEntry, error) {
	if err := planType.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByPlanType(ctx, planType.String())
}

func (s *planService) CreatePlan(ctx context.Context, entry *plancatalog.PlanCatalogEntry) (*plancatalog.PlanCatalogEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_CATALOG)
	}
	entry.BaseModel = types.GetDefaultBaseModel(ctx)

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return entry, nil
}

func (s *planService) UpdatePlan(ctx context.Context, id string, params plancatalog.UpdateParams) (*plancatalog.PlanCatalogEntry, error) {
	updated, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *planService) EnsureRemotePlan(ctx context.Context, planType types.PlanType) (string, error) {
	entry, err := s.GetPlan(ctx, planType)
	if err != nil {
		return "", err
	}
	if entry.RemotePlanID != "" {
		return entry.RemotePlanID, nil
	}
	if !entry.PlanType.IsRecurring() {
		return "", ierr.NewError("lifetime plans have no remote billing plan").
			WithHint("One-time purchases are captured through the order API").
			Mark(ierr.ErrInvalidOperation)
	}

	remote, err := s.gateway.CreateRemotePlan(ctx,
		s.cfg.PayPal.ProductID,
		"SplitFair "+entry.PlanType.String(),
		string(entry.Interval),
		paypal.Money{CurrencyCode: entry.Currency, Value: entry.Price.StringFixed(2)},
		entry.TrialDays,
	)
	if err != nil {
		return "", err
	}

	if _, err := s.repo.Update(ctx, entry.ID, plancatalog.UpdateParams{
		RemotePlanID: types.NewNullable(remote.ID),
	}); err != nil {
		return "", err
	}
	s.invalidate(ctx)

	s.log.Infow("provisioned remote billing plan",
		"plan_type", entry.PlanType,
		"remote_plan_id", remote.ID,
	)
	return remote.ID, nil
}

func (s *planService) invalidate(ctx context.Context) {
	s.cache.DeleteByPrefix(ctx, cache.PrefixPlanCatalog)
}
