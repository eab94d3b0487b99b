package payment

import (
	"strings"

	"github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// PaymentMethodMpesa is the payment method the storefront backend expects for STK push orders.
const PaymentMethodMpesa = "M-Pesa"

// Payment status values reported by the storefront backend.
const (
	RemoteStatusPending = "Pending"
	RemoteStatusSuccess = "Success"
	RemoteStatusFailed  = "Failed"
)

// OrderPayload is the checkout data sent with a fresh STK push.
type OrderPayload struct {
	TotalAmount   decimal.Decimal
	Address       string
	PaymentMethod string
}

// Validate checks that the order can be submitted.
func (o OrderPayload) Validate() error {
	if !o.TotalAmount.IsPositive() {
		return errors.NewValidationError("total_amount", "must be greater than 0")
	}
	if strings.TrimSpace(o.Address) == "" {
		return errors.NewValidationError("address", "cannot be empty")
	}
	return nil
}

// ChargeRequest asks the backend to mint an order and push an STK prompt to PhoneNumber.
type ChargeRequest struct {
	PhoneNumber string
	Order       OrderPayload
}

// RetryChargeRequest asks the backend to push a new STK prompt for an existing order.
type RetryChargeRequest struct {
	PhoneNumber    string
	OrderReference string
}

// ChargeResult is the backend's acknowledgement of an STK push.
type ChargeResult struct {
	OrderReference string
}

// StatusReport is one answer of the payment status endpoint.
type StatusReport struct {
	PaymentStatus string
	TransactionID string
	MpesaReceipt  string
	FailureReason string
}

// Receipt returns the confirmation code of a successful payment.
func (r StatusReport) Receipt() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	return r.MpesaReceipt
}

// IsTerminal reports whether the backend has settled the payment.
func (r StatusReport) IsTerminal() bool {
	return r.PaymentStatus == RemoteStatusSuccess || r.PaymentStatus == RemoteStatusFailed
}
