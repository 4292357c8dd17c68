package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/outbox"
	"github.com/angelmondragon/renewals-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderDetail aggregates an order with its billing context.
type OrderDetail struct {
	Order         models.Order
	Subscriptions []models.Subscription
	PaymentMethod *models.PaymentMethod
	Notes         []models.OrderNote
}

// ChangeStatusInput captures a manual order status change.
type ChangeStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Note    string
}

// Service defines order-level operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	ChangeStatus(ctx context.Context, input ChangeStatusInput) error
	AddNote(ctx context.Context, orderID uuid.UUID, note string) error
}

// ServiceParams groups dependencies for the order service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Outbox            outboxPublisher
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.TransactionRunner,
		outbox: params.Outbox,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	subs, err := s.repo.FindSubscriptionsForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order subscriptions")
	}

	notes, err := s.repo.FindNotes(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order notes")
	}

	detail := &OrderDetail{
		Order:         *order,
		Subscriptions: subs,
		Notes:         notes,
	}
	if order.PaymentMethodID != nil {
		method, err := s.repo.FindPaymentMethod(ctx, *order.PaymentMethodID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment method")
		}
		detail.PaymentMethod = method
	}
	return detail, nil
}

func (s *service) ChangeStatus(ctx context.Context, input ChangeStatusInput) error {
	if !input.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order.Status == input.Status {
			return nil
		}

		from := order.Status
		if err := repo.UpdateOrderStatus(ctx, order.ID, input.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if input.Note != "" {
			note := &models.OrderNote{OrderID: order.ID, Note: input.Note}
			if err := repo.AddNote(ctx, note); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID,
				From:    from,
				To:      input.Status,
			},
		})
	})
}

func (s *service) AddNote(ctx context.Context, orderID uuid.UUID, note string) error {
	if note == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "note is required")
	}
	if _, err := s.repo.FindOrder(ctx, orderID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	row := &models.OrderNote{OrderID: orderID, Note: note}
	if err := s.repo.AddNote(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
	}
	return nil
}
