package repository

import (
	"context"
	"time"

	"github.com/splitfair/splitfair/internal/domain/anomaly"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"gorm.io/gorm"
)

type anomalyModel struct {
	ID             string            `gorm:"primaryKey;size:64"`
	ReferenceCode  string            `gorm:"size:24;uniqueIndex;not null"`
	SubscriptionID string            `gorm:"size:64;index;not null"`
	OwnerID        string            `gorm:"size:64;index"`
	Kind           string            `gorm:"size:64;not null"`
	Description    string            `gorm:"size:512"`
	TransactionID  string            `gorm:"size:64"`
	Details        map[string]string `gorm:"serializer:json"`
	DetectedAt     time.Time
	ResolvedAt     *time.Time
	ResolvedBy     string `gorm:"size:64"`
	Resolution     string `gorm:"size:512"`
}

func (anomalyModel) TableName() string {
	return "reconciliation_anomalies"
}

func toAnomalyModel(a *anomaly.Anomaly) *anomalyModel {
	return &anomalyModel{
		ID:             a.ID,
		ReferenceCode:  a.ReferenceCode,
		SubscriptionID: a.SubscriptionID,
		OwnerID:        a.OwnerID,
		Kind:           string(a.Kind),
		Description:    a.Description,
		TransactionID:  a.TransactionID,
		Details:        a.Details,
		DetectedAt:     a.DetectedAt,
		ResolvedAt:     a.ResolvedAt,
		ResolvedBy:     a.ResolvedBy,
		Resolution:     a.Resolution,
	}
}

func toAnomalyDomain(m *anomalyModel) *anomaly.Anomaly {
	return &anomaly.Anomaly{
		ID:             m.ID,
		ReferenceCode:  m.ReferenceCode,
		SubscriptionID: m.SubscriptionID,
		OwnerID:        m.OwnerID,
		Kind:           anomaly.Kind(m.Kind),
		Description:    m.Description,
		TransactionID:  m.TransactionID,
		Details:        m.Details,
		DetectedAt:     m.DetectedAt,
		ResolvedAt:     m.ResolvedAt,
		ResolvedBy:     m.ResolvedBy,
		Resolution:     m.Resolution,
	}
}

type anomalyRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewAnomalyRepository creates a gorm-backed anomaly repository
func NewAnomalyRepository(db *gorm.DB, log *logger.Logger) anomaly.Repository {
	return &anomalyRepository{db: db, log: log}
}

func (r *anomalyRepository) Create(ctx context.Context, a *anomaly.Anomaly) error {
	if err := r.db.WithContext(ctx).Create(toAnomalyModel(a)).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to persist anomaly record").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *anomalyRepository) Get(ctx context.Context, id string) (*anomaly.Anomaly, error) {
	var m anomalyModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("Anomaly not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Database query failed").
			Mark(ierr.ErrDatabase)
	}
	return toAnomalyDomain(&m), nil
}

func (r *anomalyRepository) ListOpen(ctx context.Context) ([]*anomaly.Anomaly, error) {
	var models []anomalyModel
	err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("detected_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list open anomalies").
			Mark(ierr.ErrDatabase)
	}
	return toAnomalyDomainList(models), nil
}

func (r *anomalyRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*anomaly.Anomaly, error) {
	var models []anomalyModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("detected_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list anomalies").
			Mark(ierr.ErrDatabase)
	}
	return toAnomalyDomainList(models), nil
}

func (r *anomalyRepository) MarkResolved(ctx context.Context, id string, resolvedBy, resolution string, resolvedAt time.Time) (*anomaly.Anomaly, error) {
	res := r.db.WithContext(ctx).
		Model(&anomalyModel{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_at": resolvedAt,
			"resolved_by": resolvedBy,
			"resolution":  resolution,
		})
	if res.Error != nil {
		return nil, ierr.WithError(res.Error).
			WithHint("Failed to resolve anomaly").
			Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		// Missing or already resolved; Get disambiguates
		existing, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, ierr.NewError("anomaly already resolved").
			WithHint("This anomaly was resolved earlier").
			WithReportableDetails(map[string]any{
				"reference_code": existing.ReferenceCode,
				"resolved_by":    existing.ResolvedBy,
			}).
			Mark(ierr.ErrAlreadyExists)
	}
	return r.Get(ctx, id)
}

func toAnomalyDomainList(models []anomalyModel) []*anomaly.Anomaly {
	result := make([]*anomaly.Anomaly, len(models))
	for i := range models {
		result[i] = toAnomalyDomain(&models[i])
	}
	return result
}
