package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/angelmondragon/renewals-backend/internal/retry"
	"github.com/angelmondragon/renewals-backend/internal/subscriptions"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
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

// Service translates Stripe webhook events into renewal pipeline calls.
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

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeInvoicePaymentFailed:
		return s.handleInvoiceFailed(ctx, event)
	case stripe.EventTypeInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case stripe.EventTypePaymentIntentSucceeded:
		return s.handlePaymentIntentSucceeded(ctx, event)
	case stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionChange(ctx, event)
	default:
		return nil
	}
}

func (s *Service) handleInvoiceFailed(ctx context.Context, event *stripe.Event) error {
	order, err := s.resolveInvoiceOrder(ctx, event)
	if err != nil {
		return err
	}
	if order == nil {
		lctx := s.logg.WithField(ctx, "stripe_event", string(event.Type))
		s.logg.Warn(lctx, "no local order matched failed stripe invoice")
		return nil
	}

	reason := event.GetObjectValue("last_finalization_error", "message")
	if reason == "" {
		reason = "stripe invoice payment failed"
	}
	return s.retry.ProcessRenewalFailure(ctx, retry.ProcessFailureInput{
		OrderID:      order.ID,
		GatewayError: reason,
	})
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	order, err := s.resolveInvoiceOrder(ctx, event)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	ref := event.GetObjectValue("id")
	if ref == "" && order.GatewayRef != nil {
		ref = *order.GatewayRef
	}
	return s.retry.HandleExternalPayment(ctx, order.ID, ref)
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, event *stripe.Event) error {
	ref := event.GetObjectValue("id")
	if ref == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	order, err := s.orders.FindOrderByGatewayRef(ctx, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up order by payment intent")
	}
	return s.retry.HandleExternalPayment(ctx, order.ID, ref)
}

func (s *Service) handleSubscriptionChange(ctx context.Context, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
	}
	if stripeSub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
	}

	status, ok := subscriptions.MapStripeStatus(string(stripeSub.Status))
	if !ok {
		lctx := s.logg.WithField(ctx, "stripe_status", string(stripeSub.Status))
		s.logg.Warn(lctx, "unmapped stripe subscription status")
		return nil
	}

	local, err := s.subs.FindByGatewayRef(ctx, stripeSub.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up subscription")
	}
	return s.retry.HandleSubscriptionStatusChange(ctx, local.ID, status)
}

// resolveInvoiceOrder matches a stripe invoice to a local order, first by the
// invoice id as a gateway reference, then through the invoice's subscription.
// Returns nil without error when nothing matches; webhooks for unrelated
// invoices are not failures.
func (s *Service) resolveInvoiceOrder(ctx context.Context, event *stripe.Event) (*models.Order, error) {
	invoiceID := event.GetObjectValue("id")
	if invoiceID != "" {
		order, err := s.orders.FindOrderByGatewayRef(ctx, invoiceID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up order by invoice")
		}
	}

	subRef := event.GetObjectValue("subscription")
	if subRef == "" {
		return nil, nil
	}
	local, err := s.subs.FindByGatewayRef(ctx, subRef)
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
