package gateway

import (
	"context"
	"fmt"

	sq "github.com/square/square-go-sdk"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/square"
)

// SquarePaymentClient exposes the subset of Square operations the renewal
// charger needs.
type SquarePaymentClient interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
}

// SquareCharger collects renewal payments against stored Square cards.
type SquareCharger struct {
	client     SquarePaymentClient
	locationID string
}

// NewSquareCharger builds the Square charger for the given location.
func NewSquareCharger(client SquarePaymentClient, locationID string) (*SquareCharger, error) {
	if client == nil {
		return nil, fmt.Errorf("square payment client required")
	}
	if locationID == "" {
		return nil, fmt.Errorf("square location id required")
	}
	return &SquareCharger{client: client, locationID: locationID}, nil
}

func (c *SquareCharger) Name() enums.PaymentGateway {
	return enums.PaymentGatewaySquare
}

func (c *SquareCharger) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	amount := amountCents(req.Order.Total)
	if amount <= 0 {
		return nil, &DeclineError{Reason: "nothing to collect"}
	}

	payment, err := c.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    amount,
		Currency:       string(req.Order.Currency),
		LocationID:     c.locationID,
		CustomerID:     req.Method.CustomerRef,
		SourceID:       req.Method.GatewayRef,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.Order.Number,
	})
	if err != nil {
		if squareDeclined(err) {
			return nil, &DeclineError{Reason: "card declined", Err: err}
		}
		return nil, fmt.Errorf("square charge: %w", err)
	}

	status := ""
	if payment.Status != nil {
		status = *payment.Status
	}
	switch status {
	case "COMPLETED", "APPROVED", "PENDING":
		ref := ""
		if payment.ID != nil {
			ref = *payment.ID
		}
		return &ChargeResult{GatewayRef: ref}, nil
	default:
		return nil, &DeclineError{Reason: fmt.Sprintf("payment %s", status)}
	}
}

func squareDeclined(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeStateConflict, pkgerrors.CodeConflict:
		return true
	default:
		return false
	}
}

func amountCents(total decimal.Decimal) int64 {
	return total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
