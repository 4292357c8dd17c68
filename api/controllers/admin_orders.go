package controllers

import (
	"net/http"

	"github.com/angelmondragon/renewals-backend/api/responses"
	"github.com/angelmondragon/renewals-backend/api/validators"
	"github.com/angelmondragon/renewals-backend/internal/orders"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
)

type orderDetailResponse struct {
	Order         models.Order          `json:"order"`
	Subscriptions []models.Subscription `json:"subscriptions"`
	PaymentMethod *models.PaymentMethod `json:"payment_method,omitempty"`
	Notes         []models.OrderNote    `json:"notes"`
}

type changeOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

type addOrderNoteRequest struct {
	Note string `json:"note" validate:"required,max=500"`
}

// AdminOrderDetail returns a renewal order with its subscriptions, payment
// method, and audit notes.
func AdminOrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, orderDetailResponse{
			Order:         detail.Order,
			Subscriptions: detail.Subscriptions,
			PaymentMethod: detail.PaymentMethod,
			Notes:         detail.Notes,
		})
	}
}

// AdminOrderStatusChange applies a manual order status change with an
// optional audit note.
func AdminOrderStatusChange(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req changeOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		input := orders.ChangeStatusInput{
			OrderID: orderID,
			Status:  status,
			Note:    validators.SanitizeString(req.Note, 500),
		}
		if err := svc.ChangeStatus(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// AdminOrderAddNote appends an audit note to an order.
func AdminOrderAddNote(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req addOrderNoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.AddNote(r.Context(), orderID, validators.SanitizeString(req.Note, 500)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, nil)
	}
}
