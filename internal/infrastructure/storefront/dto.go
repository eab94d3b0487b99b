package storefront

import (
	"encoding/json"

	"github.com/elektrahub/checkout/internal/domain/order"
)

type initiateRequest struct {
	TotalAmount   json.Number `json:"total_amount"`
	Address       string      `json:"address"`
	PaymentMethod string      `json:"payment_method"`
	PhoneNumber   string      `json:"phone_number"`
}

type retryRequest struct {
	PhoneNumber    string `json:"phone_number"`
	OrderReference string `json:"order_reference"`
}

type chargeResponse struct {
	OrderReference string `json:"order_reference"`
}

type statusResponse struct {
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id"`
	MpesaReceipt  string `json:"mpesa_receipt"`
	FailureReason string `json:"failure_reason"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *errorResponse) text() string {
	if e == nil {
		return ""
	}
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// ordersEnvelope covers backends that wrap the list in an object.
type ordersEnvelope struct {
	Orders []order.Record `json:"orders"`
}
