package controller

import (
	"net/http"
	"strconv"

	"github.com/elektrahub/checkout/internal/application/checkout"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
)

type OrderController struct {
	sessions *checkout.Manager
	attempts *checkout.AttemptLog
}

func NewOrderController(sessions *checkout.Manager, attempts *checkout.AttemptLog) *OrderController {
	return &OrderController{sessions: sessions, attempts: attempts}
}

// List returns the customer's orders, one entry per order reference.
func (h *OrderController) List(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	orders, err := h.sessions.ListOrders(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, FromOrder(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RetryPayment re-charges an unpaid M-Pesa order from the orders page.
func (h *OrderController) RetryPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var req RetryPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s, err := h.sessions.RetryOrder(r.Context(), id, chi.URLParam(r, "reference"), req.PhoneNumber)
	respondSession(w, http.StatusCreated, s, err)
}

// Attempts lists the recorded payment attempts of an order.
func (h *OrderController) Attempts(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := h.attempts.List(r.Context(), id, chi.URLParam(r, "reference"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, FromAttempt(a))
	}
	writeJSON(w, http.StatusOK, resp)
}
