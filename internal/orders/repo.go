package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("number = ?", number).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByGatewayRef(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("gateway_ref = ?", ref).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindDueOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).
		Where("retry_due_at IS NOT NULL AND retry_due_at <= ?", cutoff).
		Order("retry_due_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return r.UpdateOrder(ctx, id, map[string]any{"status": status})
}

func (r *repository) SetRetryDue(ctx context.Context, id uuid.UUID, due *time.Time) error {
	return r.UpdateOrder(ctx, id, map[string]any{"retry_due_at": due})
}

func (r *repository) AddNote(ctx context.Context, note *models.OrderNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *repository) FindNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error) {
	var notes []models.OrderNote
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&notes).Error
	return notes, err
}

func (r *repository) LinkSubscription(ctx context.Context, orderID, subscriptionID uuid.UUID) error {
	link := models.OrderSubscription{OrderID: orderID, SubscriptionID: subscriptionID}
	return r.db.WithContext(ctx).Create(&link).Error
}

func (r *repository) FindSubscriptionsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Joins("JOIN order_subscriptions ON order_subscriptions.subscription_id = subscriptions.id").
		Where("order_subscriptions.order_id = ?", orderID).
		Find(&subs).Error
	return subs, err
}

func (r *repository) FindOrdersForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Joins("JOIN order_subscriptions ON order_subscriptions.order_id = orders.id").
		Where("order_subscriptions.subscription_id = ?", subscriptionID).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindPaymentMethod(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&method).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}
