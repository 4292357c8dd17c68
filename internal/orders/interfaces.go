package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// Repository defines persistence operations for renewal orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	FindOrderByGatewayRef(ctx context.Context, ref string) (*models.Order, error)
	FindDueOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
	SetRetryDue(ctx context.Context, id uuid.UUID, due *time.Time) error
	AddNote(ctx context.Context, note *models.OrderNote) error
	FindNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error)
	LinkSubscription(ctx context.Context, orderID, subscriptionID uuid.UUID) error
	FindSubscriptionsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Subscription, error)
	FindOrdersForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error)
	FindPaymentMethod(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
}
