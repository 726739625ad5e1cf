package repository

import (
	"context"
	"time"

	"github.com/splitfair/splitfair/internal/domain/subscription"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/sentry"
	"github.com/splitfair/splitfair/internal/types"
	"gorm.io/gorm"
)

type subscriptionModel struct {
	ID                 string  `gorm:"primaryKey;size:64"`
	OwnerID            string  `gorm:"size:64;index;not null"`
	RemoteID           *string `gorm:"size:64;uniqueIndex"`
	PayerRef           string  `gorm:"size:64"`
	PlanType           string  `gorm:"size:16;not null"`
	SubscriptionStatus string  `gorm:"size:24;index;not null"`
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	TrialEnd           *time.Time
	NextBillingTime    *time.Time
	LastSyncedAt       *time.Time
	Version            int               `gorm:"not null;default:1"`
	Metadata           map[string]string `gorm:"serializer:json"`
	Status             string            `gorm:"size:16;not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CreatedBy          string `gorm:"size:64"`
	UpdatedBy          string `gorm:"size:64"`
}

func (subscriptionModel) TableName() string {
	return "subscriptions"
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	var remoteID *string
	if s.RemoteID != "" {
		rid := s.RemoteID
		remoteID = &rid
	}
	return &subscriptionModel{
		ID:                 s.ID,
		OwnerID:            s.OwnerID,
		RemoteID:           remoteID,
		PayerRef:           s.PayerRef,
		PlanType:           s.PlanType.String(),
		SubscriptionStatus: s.SubscriptionStatus.String(),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAt,
		TrialEnd:           s.TrialEnd,
		NextBillingTime:    s.NextBillingTime,
		LastSyncedAt:       s.LastSyncedAt,
		Version:            s.Version,
		Metadata:           s.Metadata,
		Status:             s.BaseModel.Status.String(),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		CreatedBy:          s.CreatedBy,
		UpdatedBy:          s.UpdatedBy,
	}
}

func toSubscriptionDomain(m *subscriptionModel) *subscription.Subscription {
	remoteID := ""
	if m.RemoteID != nil {
		remoteID = *m.RemoteID
	}
	return &subscription.Subscription{
		ID:                 m.ID,
		OwnerID:            m.OwnerID,
		RemoteID:           remoteID,
		PayerRef:           m.PayerRef,
		PlanType:           types.PlanType(m.PlanType),
		SubscriptionStatus: types.SubscriptionStatus(m.SubscriptionStatus),
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		CancelAtPeriodEnd:  m.CancelAtPeriodEnd,
		CanceledAt:         m.CanceledAt,
		TrialEnd:           m.TrialEnd,
		NextBillingTime:    m.NextBillingTime,
		LastSyncedAt:       m.LastSyncedAt,
		Version:            m.Version,
		Metadata:           m.Metadata,
		BaseModel: types.BaseModel{
			Status:    types.Status(m.Status),
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
			CreatedBy: m.CreatedBy,
			UpdatedBy: m.UpdatedBy,
		},
	}
}

type subscriptionRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSubscriptionRepository creates a gorm-backed subscription repository
func NewSubscriptionRepository(db *gorm.DB, log *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, log: log}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	span := sentry.StartRepositorySpan(ctx, "subscription", "create", map[string]interface{}{
		"subscription_id": sub.ID,
	})
	defer sentry.FinishSpan(span)

	if err := r.db.WithContext(ctx).Create(toSubscriptionModel(sub)).Error; err != nil {
		sentry.SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("A subscription with this remote id already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			Mark(ierr.ErrDatabase)
	}
	sentry.SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	span := sentry.StartRepositorySpan(ctx, "subscription", "get", map[string]interface{}{
		"subscription_id": id,
	})
	defer sentry.FinishSpan(span)

	var m subscriptionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		sentry.SetSpanError(span, err)
		return nil, r.notFoundOrDatabase(err, "subscription not found")
	}
	sentry.SetSpanSuccess(span)
	return toSubscriptionDomain(&m), nil
}

func (r *subscriptionRepository) GetByRemoteID(ctx context.Context, remoteID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := r.db.WithContext(ctx).Where("remote_id = ?", remoteID).First(&m).Error
	if err != nil {
		return nil, r.notFoundOrDatabase(err, "subscription not found for remote id")
	}
	return toSubscriptionDomain(&m), nil
}

func (r *subscriptionRepository) GetLatestForOwner(ctx context.Context, ownerID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, r.notFoundOrDatabase(err, "owner has no subscription")
	}
	return toSubscriptionDomain(&m), nil
}

func (r *subscriptionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return toSubscriptionDomainList(models), nil
}

func (r *subscriptionRepository) ListNonTerminal(ctx context.Context) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := r.db.WithContext(ctx).
		Where("subscription_status NOT IN ?", []string{
			types.SubscriptionStatusCancelled.String(),
			types.SubscriptionStatusExpired.String(),
		}).
		Find(&models).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list non-terminal subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return toSubscriptionDomainList(models), nil
}

func (r *subscriptionRepository) Update(ctx context.Context, id string, expectedVersion int, params subscription.UpdateParams) (*subscription.Subscription, error) {
	span := sentry.StartRepositorySpan(ctx, "subscription", "update", map[string]interface{}{
		"subscription_id": id,
		"version":         expectedVersion,
	})
	defer sentry.FinishSpan(span)

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"version":    expectedVersion + 1,
		"updated_at": now,
	}
	if params.SubscriptionStatus != nil {
		updates["subscription_status"] = params.SubscriptionStatus.String()
	}
	if params.RemoteID != nil {
		updates["remote_id"] = *params.RemoteID
	}
	if params.PayerRef != nil {
		updates["payer_ref"] = *params.PayerRef
	}
	if params.CurrentPeriodStart != nil {
		updates["current_period_start"] = *params.CurrentPeriodStart
	}
	if params.CurrentPeriodEnd.IsSet() {
		updates["current_period_end"] = params.CurrentPeriodEnd.Value()
	}
	if params.CancelAtPeriodEnd != nil {
		updates["cancel_at_period_end"] = *params.CancelAtPeriodEnd
	}
	if params.CanceledAt.IsSet() {
		updates["canceled_at"] = params.CanceledAt.Value()
	}
	if params.TrialEnd.IsSet() {
		updates["trial_end"] = params.TrialEnd.Value()
	}
	if params.NextBillingTime.IsSet() {
		updates["next_billing_time"] = params.NextBillingTime.Value()
	}
	if params.LastSyncedAt != nil {
		updates["last_synced_at"] = *params.LastSyncedAt
	}

	res := r.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		sentry.SetSpanError(span, res.Error)
		return nil, ierr.WithError(res.Error).
			WithHint("Failed to update subscription").
			Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		// Either the row is gone or it moved underneath the caller
		var m subscriptionModel
		if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
			return nil, r.notFoundOrDatabase(err, "subscription not found")
		}
		return nil, ierr.NewError("subscription was modified concurrently").
			WithHint("Re-fetch the subscription and retry the transition").
			WithReportableDetails(map[string]any{
				"subscription_id":  id,
				"expected_version": expectedVersion,
				"actual_version":   m.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	sentry.SetSpanSuccess(span)
	return r.Get(ctx, id)
}

func (r *subscriptionRepository) notFoundOrDatabase(err error, hint string) error {
	if ierr.Is(err, gorm.ErrRecordNotFound) {
		return ierr.WithError(err).
			WithHint(hint).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithHint("Database query failed").
		Mark(ierr.ErrDatabase)
}

func toSubscriptionDomainList(models []subscriptionModel) []*subscription.Subscription {
	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = toSubscriptionDomain(&models[i])
	}
	return result
}
