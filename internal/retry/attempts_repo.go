package retry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	"github.com/angelmondragon/renewals-backend/pkg/pagination"
)

// AttemptsRepository defines persistence operations for retry attempts.
type AttemptsRepository interface {
	WithTx(tx *gorm.DB) AttemptsRepository
	CreateAttempt(ctx context.Context, attempt *models.RetryAttempt) (*models.RetryAttempt, error)
	FindAttempt(ctx context.Context, id uuid.UUID) (*models.RetryAttempt, error)
	// FindOpenForOrder returns the order's single pending or processing
	// attempt, or gorm.ErrRecordNotFound when none is open.
	FindOpenForOrder(ctx context.Context, orderID uuid.UUID) (*models.RetryAttempt, error)
	// CountNonCancelled is the order's retry count: cancelled attempts do
	// not consume a rule position.
	CountNonCancelled(ctx context.Context, orderID uuid.UUID) (int, error)
	UpdateAttemptStatus(ctx context.Context, id uuid.UUID, status enums.RetryStatus) error
	ListForOrder(ctx context.Context, orderID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RetryAttempt, error)
}

type attemptsRepository struct {
	db *gorm.DB
}

// NewAttemptsRepository builds an attempts repository bound to the provided DB.
func NewAttemptsRepository(db *gorm.DB) AttemptsRepository {
	return &attemptsRepository{db: db}
}

func (r *attemptsRepository) WithTx(tx *gorm.DB) AttemptsRepository {
	if tx == nil {
		return r
	}
	return &attemptsRepository{db: tx}
}

func (r *attemptsRepository) CreateAttempt(ctx context.Context, attempt *models.RetryAttempt) (*models.RetryAttempt, error) {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *attemptsRepository) FindAttempt(ctx context.Context, id uuid.UUID) (*models.RetryAttempt, error) {
	var attempt models.RetryAttempt
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptsRepository) FindOpenForOrder(ctx context.Context, orderID uuid.UUID) (*models.RetryAttempt, error) {
	var attempt models.RetryAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []enums.RetryStatus{
			enums.RetryStatusPending,
			enums.RetryStatusProcessing,
		}).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptsRepository) CountNonCancelled(ctx context.Context, orderID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RetryAttempt{}).
		Where("order_id = ? AND status <> ?", orderID, enums.RetryStatusCancelled).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *attemptsRepository) UpdateAttemptStatus(ctx context.Context, id uuid.UUID, status enums.RetryStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.RetryAttempt{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *attemptsRepository) ListForOrder(ctx context.Context, orderID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RetryAttempt, error) {
	query := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var attempts []models.RetryAttempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
