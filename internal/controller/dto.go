package controller

import (
	"time"

	"github.com/elektrahub/checkout/internal/domain/order"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---

// StartSessionRequest opens the payment view for a new order.
type StartSessionRequest struct {
	PhoneNumber   string          `json:"phone_number" validate:"required,max=20"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Address       string          `json:"address" validate:"required,max=500"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,max=32"`
}

// RetryPaymentRequest re-sends the STK push to the given phone.
type RetryPaymentRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,max=20"`
}

// --- Response DTOs ---

// SessionResponse is the state of a payment session as the storefront renders it.
type SessionResponse struct {
	ID               string         `json:"id"`
	OrderReference   string         `json:"order_reference,omitempty"`
	Status           string         `json:"status"`
	TransactionID    string         `json:"transaction_id,omitempty"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	RemainingSeconds int            `json:"remaining_seconds"`
	IsRetry          bool           `json:"is_retry"`
	NextAction       string         `json:"next_action,omitempty"`
	Message          string         `json:"message"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	Error            *ErrorResponse `json:"error,omitempty"`
}

// OrderResponse is one aggregated order.
type OrderResponse struct {
	OrderReference  string          `json:"order_reference"`
	Status          string          `json:"status"`
	Payment         string          `json:"payment"`
	PaymentMethod   string          `json:"payment_method"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Address         string          `json:"address,omitempty"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
	Items           []order.Item    `json:"items"`
	CanRetryPayment bool            `json:"can_retry_payment"`
}

// AttemptResponse is one recorded payment attempt.
type AttemptResponse struct {
	SessionID      string     `json:"session_id"`
	OrderReference string     `json:"order_reference"`
	MaskedPhone    string     `json:"masked_phone"`
	Status         string     `json:"status"`
	IsRetry        bool       `json:"is_retry"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromSession converts a session snapshot to its API form.
func FromSession(s payment.Session) *SessionResponse {
	return &SessionResponse{
		ID:               s.ID.String(),
		OrderReference:   s.OrderReference,
		Status:           string(s.Status),
		TransactionID:    s.TransactionID,
		FailureReason:    s.FailureReason,
		RemainingSeconds: s.RemainingSeconds,
		IsRetry:          s.IsRetry,
		NextAction:       s.NextAction(),
		Message:          sessionMessage(s),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		CompletedAt:      s.CompletedAt,
	}
}

func sessionMessage(s payment.Session) string {
	switch s.Status {
	case payment.StatusPending:
		return "Check your phone and enter your M-Pesa PIN to complete the payment."
	case payment.StatusSuccess:
		return "Payment received. Thank you for your order."
	case payment.StatusFailed:
		return s.FailureReason + ". You can try the payment again."
	case payment.StatusTimeout:
		return "We did not get a payment confirmation in time. If you completed the payment, check your orders page before trying again."
	default:
		return "Enter your M-Pesa phone number to pay."
	}
}

// FromOrder converts an aggregated order to its API form.
func FromOrder(o order.Order) OrderResponse {
	resp := OrderResponse{
		OrderReference:  o.Reference,
		Status:          o.Status,
		Payment:         o.Payment,
		PaymentMethod:   o.PaymentMethod,
		TotalAmount:     o.TotalAmount,
		Address:         o.Address,
		Items:           o.Items,
		CanRetryPayment: o.CanRetryPayment(),
	}
	if !o.CreatedAt.IsZero() {
		t := o.CreatedAt
		resp.CreatedAt = &t
	}
	if resp.Items == nil {
		resp.Items = []order.Item{}
	}
	return resp
}

// FromAttempt converts a ledger record to its API form.
func FromAttempt(a *payment.Attempt) AttemptResponse {
	return AttemptResponse{
		SessionID:      a.SessionID.String(),
		OrderReference: a.OrderReference,
		MaskedPhone:    a.MaskedPhone,
		Status:         string(a.Status),
		IsRetry:        a.IsRetry,
		TransactionID:  a.TransactionID,
		FailureReason:  a.FailureReason,
		StartedAt:      a.StartedAt,
		CompletedAt:    a.CompletedAt,
	}
}
