package checkout_test

import (
	"context"
	"testing"

	"github.com/elektrahub/checkout/internal/application/checkout"
	"github.com/elektrahub/checkout/internal/domain/customer"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/elektrahub/checkout/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiator_FreshOrder(t *testing.T) {
	gw := testutil.NewMockGateway()
	initiator := checkout.NewInitiator(gw, 120, zerolog.Nop())
	s := payment.NewSession("user-1")

	ord := testutil.NewTestOrderPayload()
	ord.PaymentMethod = ""
	ref, err := initiator.Initiate(context.Background(), testutil.NewTestIdentity("user-1"), s, "712345678", ord)
	require.NoError(t, err)

	assert.Equal(t, "ORD-0001", ref)
	assert.Equal(t, payment.StatusPending, s.Status)
	assert.Equal(t, "254712345678", s.PhoneNumber)
	assert.Equal(t, 120, s.RemainingSeconds)

	calls := gw.InitiateCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, payment.PaymentMethodMpesa, calls[0].Order.PaymentMethod)
	assert.Empty(t, gw.RetryCalls())
}

func TestInitiator_InvalidOrderSendsNothing(t *testing.T) {
	gw := testutil.NewMockGateway()
	initiator := checkout.NewInitiator(gw, 120, zerolog.Nop())
	s := payment.NewSession("user-1")

	_, err := initiator.Initiate(context.Background(), testutil.NewTestIdentity("user-1"), s, testutil.TestPhoneNumber, payment.OrderPayload{
		TotalAmount: decimal.NewFromInt(-5),
		Address:     "Nairobi",
	})
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
	assert.Equal(t, payment.StatusNotStarted, s.Status)
	assert.Empty(t, gw.InitiateCalls())
}

func TestInitiator_RetryRequiresOrderReference(t *testing.T) {
	gw := testutil.NewMockGateway()
	initiator := checkout.NewInitiator(gw, 120, zerolog.Nop())
	s := payment.NewSession("user-1")
	s.IsRetry = true

	_, err := initiator.Initiate(context.Background(), testutil.NewTestIdentity("user-1"), s, testutil.TestPhoneNumber, payment.OrderPayload{})
	assert.ErrorIs(t, err, domainErrors.ErrOrderReferenceRequired)
	assert.Empty(t, gw.RetryCalls())
}

func TestInitiator_RetryKeepsOrderReference(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.RetryFunc = func(context.Context, customer.Identity, payment.RetryChargeRequest) (payment.ChargeResult, error) {
		return payment.ChargeResult{OrderReference: "ORD-OTHER"}, nil
	}
	initiator := checkout.NewInitiator(gw, 120, zerolog.Nop())
	s, err := payment.NewRetrySession("user-1", "ORD-1")
	require.NoError(t, err)

	ref, err := initiator.Initiate(context.Background(), testutil.NewTestIdentity("user-1"), s, testutil.TestPhoneNumber, payment.OrderPayload{})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", ref)
	assert.Equal(t, "ORD-1", s.OrderReference)
	assert.Empty(t, gw.InitiateCalls())
}

func TestInitiator_MissingOrderReferenceFails(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.InitiateFunc = func(context.Context, customer.Identity, payment.ChargeRequest) (payment.ChargeResult, error) {
		return payment.ChargeResult{}, nil
	}
	initiator := checkout.NewInitiator(gw, 120, zerolog.Nop())
	s := payment.NewSession("user-1")

	_, err := initiator.Initiate(context.Background(), testutil.NewTestIdentity("user-1"), s, testutil.TestPhoneNumber, testutil.NewTestOrderPayload())
	var te *domainErrors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, payment.StatusFailed, s.Status)
	assert.Equal(t, payment.InitiationFailureReason, s.FailureReason)
}
