package repository

import (
	"context"
	"time"

	"github.com/splitfair/splitfair/internal/domain/entitlement"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/sentry"
	"github.com/splitfair/splitfair/internal/types"
	"gorm.io/gorm"
)

type entitlementModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	PlanTier    string `gorm:"size:16;not null;uniqueIndex:idx_plan_feature"`
	FeatureKey  string `gorm:"size:48;not null;uniqueIndex:idx_plan_feature"`
	LimitValue  *int64
	IsEnabled   bool
	Description string `gorm:"size:255"`
	Status      string `gorm:"size:16;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   string `gorm:"size:64"`
	UpdatedBy   string `gorm:"size:64"`
}

func (entitlementModel) TableName() string {
	return "feature_entitlements"
}

func toEntitlementModel(e *entitlement.FeatureEntitlement) *entitlementModel {
	return &entitlementModel{
		ID:          e.ID,
		PlanTier:    e.PlanTier.String(),
		FeatureKey:  e.FeatureKey.String(),
		LimitValue:  e.LimitValue,
		IsEnabled:   e.IsEnabled,
		Description: e.Description,
		Status:      e.BaseModel.Status.String(),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		CreatedBy:   e.CreatedBy,
		UpdatedBy:   e.UpdatedBy,
	}
}

func toEntitlementDomain(m *entitlementModel) *entitlement.FeatureEntitlement {
	return &entitlement.FeatureEntitlement{
		ID:          m.ID,
		PlanTier:    types.ResolvedPlan(m.PlanTier),
		FeatureKey:  types.FeatureKey(m.FeatureKey),
		LimitValue:  m.LimitValue,
		IsEnabled:   m.IsEnabled,
		Description: m.Description,
		BaseModel: types.BaseModel{
			Status:    types.Status(m.Status),
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
			CreatedBy: m.CreatedBy,
			UpdatedBy: m.UpdatedBy,
		},
	}
}

type entitlementRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewEntitlementRepository creates a gorm-backed entitlement repository
func NewEntitlementRepository(db *gorm.DB, log *logger.Logger) entitlement.Repository {
	return &entitlementRepository{db: db, log: log}
}

func (r *entitlementRepository) Create(ctx context.Context, e *entitlement.FeatureEntitlement) error {
	span := sentry.StartRepositorySpan(ctx, "entitlement", "create", map[string]interface{}{
		"plan_tier":   e.PlanTier,
		"feature_key": e.FeatureKey,
	})
	defer sentry.FinishSpan(span)

	if err := r.db.WithContext(ctx).Create(toEntitlementModel(e)).Error; err != nil {
		sentry.SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("An entitlement for this plan and feature already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create entitlement").
			Mark(ierr.ErrDatabase)
	}
	sentry.SetSpanSuccess(span)
	return nil
}

func (r *entitlementRepository) Get(ctx context.Context, id string) (*entitlement.FeatureEntitlement, error) {
	var m entitlementModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("Entitlement not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Database query failed").
			Mark(ierr.ErrDatabase)
	}
	return toEntitlementDomain(&m), nil
}

func (r *entitlementRepository) GetByPlanAndFeature(ctx context.Context, tier types.ResolvedPlan, key types.FeatureKey) (*entitlement.FeatureEntitlement, error) {
	var m entitlementModel
	err := r.db.WithContext(ctx).
		Where("plan_tier = ? AND feature_key = ?", tier.String(), key.String()).
		First(&m).Error
	if err != nil {
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("No entitlement configured for this plan and feature").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Database query failed").
			Mark(ierr.ErrDatabase)
	}
	return toEntitlementDomain(&m), nil
}

func (r *entitlementRepository) ListByPlan(ctx context.Context, tier types.ResolvedPlan) ([]*entitlement.FeatureEntitlement, error) {
	var models []entitlementModel
	err := r.db.WithContext(ctx).
		Where("plan_tier = ?", tier.String()).
		Order("feature_key ASC").
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list entitlements").
			Mark(ierr.ErrDatabase)
	}
	return toEntitlementDomainList(models), nil
}

func (r *entitlementRepository) List(ctx context.Context) ([]*entitlement.FeatureEntitlement, error) {
	var models []entitlementModel
	err := r.db.WithContext(ctx).
		Order("plan_tier ASC, feature_key ASC").
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list entitlements").
			Mark(ierr.ErrDatabase)
	}
	return toEntitlementDomainList(models), nil
}

func (r *entitlementRepository) Update(ctx context.Context, id string, params entitlement.UpdateParams) (*entitlement.FeatureEntitlement, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if params.LimitValue.IsSet() {
		updates["limit_value"] = params.LimitValue.Value()
	}
	if params.IsEnabled != nil {
		updates["is_enabled"] = *params.IsEnabled
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}

	res := r.db.WithContext(ctx).
		Model(&entitlementModel{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, ierr.WithError(res.Error).
			WithHint("Failed to update entitlement").
			Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return nil, ierr.NewError("entitlement not found").
			WithHint("Entitlement not found").
			Mark(ierr.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func toEntitlementDomainList(models []entitlementModel) []*entitlement.FeatureEntitlement {
	result := make([]*entitlement.FeatureEntitlement, len(models))
	for i := range models {
		result[i] = toEntitlementDomain(&models[i])
	}
	return result
}
