package testutil

import (
	"time"

	"github.com/elektrahub/checkout/internal/domain/customer"
	"github.com/elektrahub/checkout/internal/domain/order"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const TestPhoneNumber = "0712345678"

func NewTestIdentity(userID string) customer.Identity {
	return customer.Identity{UserID: userID, BearerToken: "token-" + userID}
}

func NewTestOrderPayload() payment.OrderPayload {
	return payment.OrderPayload{
		TotalAmount:   decimal.RequireFromString("2499.00"),
		Address:       "Kimathi Street, Nairobi",
		PaymentMethod: payment.PaymentMethodMpesa,
	}
}

func NewTestOrderRecord(reference, paymentStatus string, items ...order.Item) order.Record {
	return order.Record{
		OrderReference: reference,
		Status:         "Pending",
		Payment:        paymentStatus,
		PaymentMethod:  payment.PaymentMethodMpesa,
		TotalAmount:    decimal.RequireFromString("2499.00"),
		Address:        "Kimathi Street, Nairobi",
		CreatedAt:      time.Now(),
		Items:          items,
	}
}

func NewTestSessionEvent(ownerID, orderReference string, status payment.Status) payment.SessionEvent {
	now := time.Now()
	return payment.SessionEvent{
		SessionID:      uuid.New(),
		OwnerID:        ownerID,
		OrderReference: orderReference,
		MaskedPhone:    "2547*****678",
		Status:         status,
		StartedAt:      now,
		OccurredAt:     now,
	}
}
