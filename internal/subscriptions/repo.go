package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// Repository defines persistence operations for subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByGatewayRef(ctx context.Context, ref string) (*models.Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// ListForReconciliation returns gateway-linked subscriptions that have
	// not been touched since the cutoff and are still in a billable state.
	ListForReconciliation(ctx context.Context, limit int, cutoff time.Time) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscriptions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByGatewayRef(ctx context.Context, ref string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("gateway_sub_ref = ?", ref).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus) error {
	return r.Update(ctx, id, map[string]any{"status": status})
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListForReconciliation(ctx context.Context, limit int, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("gateway_sub_ref IS NOT NULL").
		Where("status IN ?", []enums.SubscriptionStatus{
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusOnHold,
			enums.SubscriptionStatusPendingCancel,
		}).
		Where("updated_at <= ?", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
