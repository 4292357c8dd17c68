package squarewebhook

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/renewals-backend/internal/retry"
	"github.com/angelmondragon/renewals-backend/internal/subscriptions"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type retryService interface {
	ProcessRenewalFailure(ctx context.Context, input retry.ProcessFailureInput) error
	HandleExternalPayment(ctx context.Context, orderID uuid.UUID, gatewayRef string) error
	HandleSubscriptionStatusChange(ctx context.Context, subscriptionID uuid.UUID, status enums.SubscriptionStatus) error
}

type orderReader interface {
	FindOrderByGatewayRef(ctx context.Context, ref string) (*models.Order, error)
	FindOrdersForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error)
}

type subscriptionReader interface {
	FindByGatewayRef(ctx context.Context, ref string) (*models.Subscription, error)
}

type ServiceParams struct {
	Logger        *logger.Logger
	Retry         retryService
	Orders        orderReader
	Subscriptions subscriptionReader
}

// Service translates Square webhook events into renewal pipeline calls.
type Service struct {
	logg   *logger.Logger
	retry  retryService
	orders orderReader
	subs   subscriptionReader
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Retry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "retry service required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order reader required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription reader required")
	}
	return &Service{
		logg:   params.Logger,
		retry:  params.Retry,
		orders: params.Orders,
		subs:   params.Subscriptions,
	}, nil
}

// WebhookEvent is the Square webhook envelope.
type WebhookEvent struct {
	EventID string      `json:"event_id"`
	Type    string      `json:"type"`
	Data    WebhookData `json:"data"`
}

type WebhookData struct {
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Object WebhookObject `json:"object"`
}

type WebhookObject struct {
	Subscription *WebhookSubscription `json:"subscription"`
	Invoice      *WebhookInvoice      `json:"invoice"`
	Payment      *WebhookPayment      `json:"payment"`
}

type WebhookSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type WebhookInvoice struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
}

type WebhookPayment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Service) HandleEvent(ctx context.Context, event *WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "subscription.updated", "subscription.canceled":
		return s.handleSubscriptionChange(ctx, event.Data.Object.Subscription)
	case "invoice.payment_made":
		return s.handleInvoicePaid(ctx, event.Data.Object.Invoice)
	case "invoice.scheduled_charge_failed":
		return s.handleInvoiceFailed(ctx, event.Data.Object.Invoice)
	case "payment.updated":
		return s.handlePaymentUpdated(ctx, event.Data.Object.Payment)
	default:
		return nil
	}
}

func (s *Service) handleSubscriptionChange(ctx context.Context, sub *WebhookSubscription) error {
	if sub == nil || sub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription payload missing")
	}
	status, ok := subscriptions.MapSquareStatus(sub.Status)
	if !ok {
		lctx := s.logg.WithField(ctx, "square_status", sub.Status)
		s.logg.Warn(lctx, "unmapped square subscription status")
		return nil
	}
	local, err := s.subs.FindByGatewayRef(ctx, sub.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up subscription")
	}
	return s.retry.HandleSubscriptionStatusChange(ctx, local.ID, status)
}

func (s *Service) handleInvoicePaid(ctx context.Context, invoice *WebhookInvoice) error {
	order, err := s.resolveInvoiceOrder(ctx, invoice)
	if err != nil || order == nil {
		return err
	}
	return s.retry.HandleExternalPayment(ctx, order.ID, invoice.ID)
}

func (s *Service) handleInvoiceFailed(ctx context.Context, invoice *WebhookInvoice) error {
	order, err := s.resolveInvoiceOrder(ctx, invoice)
	if err != nil {
		return err
	}
	if order == nil {
		s.logg.Warn(ctx, "no local order matched failed square invoice")
		return nil
	}
	return s.retry.ProcessRenewalFailure(ctx, retry.ProcessFailureInput{
		OrderID:      order.ID,
		GatewayError: "square scheduled charge failed",
	})
}

func (s *Service) handlePaymentUpdated(ctx context.Context, payment *WebhookPayment) error {
	if payment == nil || payment.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	if !strings.EqualFold(payment.Status, "COMPLETED") {
		return nil
	}
	order, err := s.orders.FindOrderByGatewayRef(ctx, payment.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up order by payment")
	}
	return s.retry.HandleExternalPayment(ctx, order.ID, payment.ID)
}

// resolveInvoiceOrder walks invoice -> local subscription -> open renewal
// order. Returns nil without error when the invoice does not belong to a
// tracked subscription.
func (s *Service) resolveInvoiceOrder(ctx context.Context, invoice *WebhookInvoice) (*models.Order, error) {
	if invoice == nil || invoice.SubscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice payload missing")
	}
	local, err := s.subs.FindByGatewayRef(ctx, invoice.SubscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up subscription")
	}
	orders, err := s.orders.FindOrdersForSubscription(ctx, local.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders for subscription")
	}
	for i := range orders {
		if orders[i].NeedsPayment() {
			return &orders[i], nil
		}
	}
	return nil, nil
}
