package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/api/responses"
	"github.com/angelmondragon/renewals-backend/api/validators"
	"github.com/angelmondragon/renewals-backend/internal/retry"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
	"github.com/angelmondragon/renewals-backend/pkg/types"
)

type retryRuleRequest struct {
	OrderID         types.NullableUUID `json:"order_id"`
	Position        *int               `json:"position" validate:"required,min=0"`
	IntervalSeconds *int64             `json:"interval_seconds" validate:"required,min=0"`
	OrderStatus     string             `json:"order_status"`
	SubStatus       string             `json:"sub_status"`
}

func (req *retryRuleRequest) toInput() (retry.RuleInput, error) {
	input := retry.RuleInput{
		OrderID:         req.OrderID.Value,
		Position:        *req.Position,
		IntervalSeconds: *req.IntervalSeconds,
	}
	if raw := strings.TrimSpace(req.OrderStatus); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return retry.RuleInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
		}
		input.OrderStatus = &status
	}
	if raw := strings.TrimSpace(req.SubStatus); raw != "" {
		status, err := enums.ParseSubscriptionStatus(raw)
		if err != nil {
			return retry.RuleInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription status")
		}
		input.SubStatus = &status
	}
	return input, nil
}

// RetryRuleList returns the default retry rule table, or an order's override
// table when order_id is supplied.
func RetryRuleList(svc retry.RulesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rules service unavailable"))
			return
		}

		var orderID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("order_id")); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
				return
			}
			orderID = &parsed
		}

		rules, err := svc.List(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"rules": rules})
	}
}

// RetryRuleCreate adds a rule to the default table or an order override table.
func RetryRuleCreate(svc retry.RulesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rules service unavailable"))
			return
		}

		var req retryRuleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rule)
	}
}

// RetryRuleUpdate replaces a rule's position, interval, and status targets.
func RetryRuleUpdate(svc retry.RulesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rules service unavailable"))
			return
		}

		ruleID, err := parseRuleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req retryRuleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.Update(r.Context(), ruleID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// RetryRuleDelete removes a rule.
func RetryRuleDelete(svc retry.RulesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rules service unavailable"))
			return
		}

		ruleID, err := parseRuleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), ruleID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func parseRuleID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "ruleId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "rule id is required")
	}
	ruleID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rule id")
	}
	return ruleID, nil
}
