package retry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
)

// RulesRepository defines persistence operations for the retry rule tables.
type RulesRepository interface {
	WithTx(tx *gorm.DB) RulesRepository
	ListDefault(ctx context.Context) ([]models.RetryRule, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.RetryRule, error)
	FindRule(ctx context.Context, id uuid.UUID) (*models.RetryRule, error)
	CreateRule(ctx context.Context, rule *models.RetryRule) (*models.RetryRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

type rulesRepository struct {
	db *gorm.DB
}

// NewRulesRepository builds a rules repository bound to the provided DB.
func NewRulesRepository(db *gorm.DB) RulesRepository {
	return &rulesRepository{db: db}
}

func (r *rulesRepository) WithTx(tx *gorm.DB) RulesRepository {
	if tx == nil {
		return r
	}
	return &rulesRepository{db: tx}
}

func (r *rulesRepository) ListDefault(ctx context.Context) ([]models.RetryRule, error) {
	var rules []models.RetryRule
	err := r.db.WithContext(ctx).
		Where("order_id IS NULL").
		Order("position ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *rulesRepository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.RetryRule, error) {
	var rules []models.RetryRule
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("position ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *rulesRepository) FindRule(ctx context.Context, id uuid.UUID) (*models.RetryRule, error) {
	var rule models.RetryRule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *rulesRepository) CreateRule(ctx context.Context, rule *models.RetryRule) (*models.RetryRule, error) {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *rulesRepository) UpdateRule(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.RetryRule{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *rulesRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.RetryRule{}).Error
}
