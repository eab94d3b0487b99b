package controller

import (
	"net/http"

	"github.com/elektrahub/checkout/internal/application/checkout"
	"github.com/elektrahub/checkout/internal/domain/customer"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/elektrahub/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CheckoutController serves the payment view of the storefront: one session per open view.
type CheckoutController struct {
	sessions *checkout.Manager
}

func NewCheckoutController(sessions *checkout.Manager) *CheckoutController {
	return &CheckoutController{sessions: sessions}
}

// Start sends the STK push for a new order and returns the pending session.
func (h *CheckoutController) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var req StartSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s, err := h.sessions.Start(r.Context(), id, checkout.StartRequest{
		PhoneNumber: req.PhoneNumber,
		Order: payment.OrderPayload{
			TotalAmount:   req.TotalAmount,
			Address:       req.Address,
			PaymentMethod: req.PaymentMethod,
		},
	})
	respondSession(w, http.StatusCreated, s, err)
}

// Get returns the current state of a session; the storefront polls this while pending.
func (h *CheckoutController) Get(w http.ResponseWriter, r *http.Request) {
	id, sessionID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	s, err := h.sessions.Get(id, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromSession(s))
}

// Retry starts a new attempt from a failed or timed out session.
func (h *CheckoutController) Retry(w http.ResponseWriter, r *http.Request) {
	id, sessionID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	var req RetryPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s, err := h.sessions.Retry(r.Context(), id, sessionID, req.PhoneNumber)
	respondSession(w, http.StatusCreated, s, err)
}

// Close is sent when the customer closes the payment view.
func (h *CheckoutController) Close(w http.ResponseWriter, r *http.Request) {
	id, sessionID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Close(id, sessionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionParams(w http.ResponseWriter, r *http.Request) (customer.Identity, uuid.UUID, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return customer.Identity{}, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid session id", Code: "invalid_id"})
		return customer.Identity{}, uuid.Nil, false
	}
	return id, sessionID, true
}

// respondSession writes a started session. When initiation failed the failed session is
// still returned so the client can offer a retry on it.
func respondSession(w http.ResponseWriter, status int, s payment.Session, err error) {
	switch {
	case err != nil && s.ID != uuid.Nil:
		writeSessionError(w, s, err)
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, status, FromSession(s))
	}
}
