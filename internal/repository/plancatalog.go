package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/splitfair/splitfair/internal/domain/plancatalog"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/types"
	"gorm.io/gorm"
)

type planCatalogModel struct {
	ID           string          `gorm:"primaryKey;size:64"`
	PlanType     string          `gorm:"size:16;not null;uniqueIndex"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2)"`
	Currency     string          `gorm:"size:8;not null"`
	Interval     string          `gorm:"size:8"`
	TrialDays    int
	RemotePlanID string `gorm:"size:64"`
	Enabled      bool
	DisplayOrder int
	Status       string `gorm:"size:16;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedBy    string `gorm:"size:64"`
	UpdatedBy    string `gorm:"size:64"`
}

func (planCatalogModel) TableName() string {
	return "plan_catalog"
}

func toPlanCatalogModel(e *plancatalog.PlanCatalogEntry) *planCatalogModel {
	return &planCatalogModel{
		ID:           e.ID,
		PlanType:     e.PlanType.String(),
		Price:        e.Price,
		Currency:     e.Currency,
		Interval:     string(e.Interval),
		TrialDays:    e.TrialDays,
		RemotePlanID: e.RemotePlanID,
		Enabled:      e.Enabled,
		DisplayOrder: e.DisplayOrder,
		Status:       e.BaseModel.Status.String(),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		CreatedBy:    e.CreatedBy,
		UpdatedBy:    e.UpdatedBy,
	}
}

func toPlanCatalogDomain(m *planCatalogModel) *plancatalog.PlanCatalogEntry {
	return &plancatalog.PlanCatalogEntry{
		ID:           m.ID,
		PlanType:     types.PlanType(m.PlanType),
		Price:        m.Price,
		Currency:     m.Currency,
		Interval:     types.BillingInterval(m.Interval),
		TrialDays:    m.TrialDays,
		RemotePlanID: m.RemotePlanID,
		Enabled:      m.Enabled,
		DisplayOrder: m.DisplayOrder,
		BaseModel: types.BaseModel{
			Status:    types.Status(m.Status),
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
			CreatedBy: m.CreatedBy,
			UpdatedBy: m.UpdatedBy,
		},
	}
}

type planCatalogRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewPlanCatalogRepository creates a gorm-backed plan catalog repository
func NewPlanCatalogRepository(db *gorm.DB, log *logger.Logger) plancatalog.Repository {
	return &planCatalogRepository{db: db, log: log}
}

func (r *planCatalogRepository) Create(ctx context.Context, entry *plancatalog.PlanCatalogEntry) error {
	if err := r.db.WithContext(ctx).Create(toPlanCatalogModel(entry)).Error; err != nil {
		if ierr.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("A catalog entry for this plan type already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create catalog entry").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *planCatalogRepository) Get(ctx context.Context, id string) (*plancatalog.PlanCatalogEntry, error) {
	var m planCatalogModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("Catalog entry not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Database query failed").
			Mark(ierr.ErrDatabase)
	}
	return toPlanCatalogDomain(&m), nil
}

func (r *planCatalogRepository) GetByPlanType(ctx context.Context, planType string) (*plancatalog.PlanCatalogEntry, error) {
	var m planCatalogModel
	err := r.db.WithContext(ctx).Where("plan_type = ?", planType).First(&m).Error
	if err != nil {
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("No catalog entry for this plan type").
				WithReportableDetails(map[string]any{
					"plan_type": planType,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Database query failed").
			Mark(ierr.ErrDatabase)
	}
	return toPlanCatalogDomain(&m), nil
}

func (r *planCatalogRepository) ListEnabled(ctx context.Context) ([]*plancatalog.PlanCatalogEntry, error) {
	var models []planCatalogModel
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("display_order ASC").
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list catalog entries").
			Mark(ierr.ErrDatabase)
	}

	result := make([]*plancatalog.PlanCatalogEntry, len(models))
	for i := range models {
		result[i] = toPlanCatalogDomain(&models[i])
	}
	return result, nil
}

func (r *planCatalogRepository) Update(ctx context.Context, id string, params plancatalog.UpdateParams) (*plancatalog.PlanCatalogEntry, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if params.Price != nil {
		updates["price"] = *params.Price
	}
	if params.RemotePlanID.IsSet() {
		if v := params.RemotePlanID.Value(); v != nil {
			updates["remote_plan_id"] = *v
		} else {
			updates["remote_plan_id"] = ""
		}
	}
	if params.Enabled != nil {
		updates["enabled"] = *params.Enabled
	}
	if params.TrialDays != nil {
		updates["trial_days"] = *params.TrialDays
	}
	if params.DisplayOrder != nil {
		updates["display_order"] = *params.DisplayOrder
	}

	res := r.db.WithContext(ctx).
		Model(&planCatalogModel{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, ierr.WithError(res.Error).
			WithHint("Failed to update catalog entry").
			Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return nil, ierr.NewError("catalog entry not found").
			WithHint("Catalog entry not found").
			Mark(ierr.ErrNotFound)
	}
	return r.Get(ctx, id)
}
