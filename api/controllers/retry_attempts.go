package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/api/responses"
	"github.com/angelmondragon/renewals-backend/api/validators"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
	"github.com/angelmondragon/renewals-backend/pkg/pagination"
)

type attemptLister interface {
	ListAttempts(ctx context.Context, orderID uuid.UUID, params pagination.Params) ([]models.RetryAttempt, string, error)
}

type retryCanceller interface {
	CancelForOrder(ctx context.Context, orderID uuid.UUID, reason string) error
}

type cancelRetryRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

// RetryAttemptList returns an order's retry attempts, newest first.
func RetryAttemptList(svc attemptLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "retry service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		attempts, nextCursor, err := svc.ListAttempts(r.Context(), orderID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"attempts":    attempts,
			"next_cursor": nextCursor,
		})
	}
}

// RetryCancel aborts the armed retry for an order.
func RetryCancel(svc retryCanceller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "retry service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRetryRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if err := svc.CancelForOrder(r.Context(), orderID, validators.SanitizeString(req.Reason, 200)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
