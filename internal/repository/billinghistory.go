package repository

import (
	"context"
	"time"

	"github.com/splitfair/splitfair/internal/domain/billinghistory"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/sentry"
	"github.com/splitfair/splitfair/internal/types"
	"gorm.io/gorm"
)

type historyEntryModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	SubscriptionID string `gorm:"size:64;index;not null"`
	EventType      string `gorm:"size:48;not null"`
	OldValue       string `gorm:"size:32"`
	NewValue       string `gorm:"size:32"`
	// Unique when present: the idempotency gate for webhook replays
	ExternalEventID    *string           `gorm:"size:128;uniqueIndex"`
	ExternalResourceID string            `gorm:"size:128"`
	Metadata           map[string]string `gorm:"serializer:json"`
	CreatedAt          time.Time
	CreatedBy          string `gorm:"size:64"`
}

func (historyEntryModel) TableName() string {
	return "subscription_history"
}

func toHistoryModel(e *billinghistory.HistoryEntry) *historyEntryModel {
	return &historyEntryModel{
		ID:                 e.ID,
		SubscriptionID:     e.SubscriptionID,
		EventType:          e.EventType.String(),
		OldValue:           e.OldValue,
		NewValue:           e.NewValue,
		ExternalEventID:    e.ExternalEventID,
		ExternalResourceID: e.ExternalResourceID,
		Metadata:           e.Metadata,
		CreatedAt:          e.CreatedAt,
		CreatedBy:          e.CreatedBy,
	}
}

func toHistoryDomain(m *historyEntryModel) *billinghistory.HistoryEntry {
	return &billinghistory.HistoryEntry{
		ID:                 m.ID,
		SubscriptionID:     m.SubscriptionID,
		EventType:          types.HistoryEventType(m.EventType),
		OldValue:           m.OldValue,
		NewValue:           m.NewValue,
		ExternalEventID:    m.ExternalEventID,
		ExternalResourceID: m.ExternalResourceID,
		Metadata:           m.Metadata,
		CreatedAt:          m.CreatedAt,
		CreatedBy:          m.CreatedBy,
	}
}

type historyRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewHistoryRepository creates a gorm-backed history ledger repository
func NewHistoryRepository(db *gorm.DB, log *logger.Logger) billinghistory.Repository {
	return &historyRepository{db: db, log: log}
}

func (r *historyRepository) Create(ctx context.Context, entry *billinghistory.HistoryEntry) error {
	span := sentry.StartRepositorySpan(ctx, "billinghistory", "create", map[string]interface{}{
		"subscription_id": entry.SubscriptionID,
		"event_type":      entry.EventType,
	})
	defer sentry.FinishSpan(span)

	if err := r.db.WithContext(ctx).Create(toHistoryModel(entry)).Error; err != nil {
		sentry.SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("This external event was already recorded").
				WithReportableDetails(map[string]any{
					"external_event_id": entry.ExternalEventID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to append history entry").
			Mark(ierr.ErrDatabase)
	}
	sentry.SetSpanSuccess(span)
	return nil
}

func (r *historyRepository) ExistsByExternalEventID(ctx context.Context, externalEventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&historyEntryModel{}).
		Where("external_event_id = ?", externalEventID).
		Count(&count).Error
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check external event id").
			Mark(ierr.ErrDatabase)
	}
	return count > 0, nil
}

func (r *historyRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*billinghistory.HistoryEntry, error) {
	var models []historyEntryModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list history entries").
			Mark(ierr.ErrDatabase)
	}

	result := make([]*billinghistory.HistoryEntry, len(models))
	for i := range models {
		result[i] = toHistoryDomain(&models[i])
	}
	return result, nil
}

func (r *historyRepository) CountBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&historyEntryModel{}).
		Where("subscription_id = ?", subscriptionID).
		Count(&count).Error
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count history entries").
			Mark(ierr.ErrDatabase)
	}
	return int(count), nil
}
