package checkout

import (
	"context"
	"errors"

	"github.com/elektrahub/checkout/internal/domain/customer"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/rs/zerolog"
)

// Initiator sends the STK push that moves a session from not_started to pending.
type Initiator struct {
	gateway   Gateway
	countdown int
	logger    zerolog.Logger
}

// NewInitiator creates an Initiator. countdownSeconds is the display countdown a session
// starts with once the push is accepted.
func NewInitiator(gateway Gateway, countdownSeconds int, logger zerolog.Logger) *Initiator {
	return &Initiator{
		gateway:   gateway,
		countdown: countdownSeconds,
		logger:    logger.With().Str("component", "initiator").Logger(),
	}
}

// Initiate normalizes rawPhone and sends exactly one charge request: a retry for sessions
// that re-charge an existing order, a fresh order otherwise. Validation errors leave the
// session untouched and send nothing. Transport errors mark the session failed and are
// returned as *errors.TransportError.
func (i *Initiator) Initiate(ctx context.Context, id customer.Identity, s *payment.Session, rawPhone string, ord payment.OrderPayload) (string, error) {
	if s.IsRetry && s.OrderReference == "" {
		return "", domainErrors.ErrOrderReferenceRequired
	}

	phone, err := payment.NormalizePhoneNumber(rawPhone)
	if err != nil {
		return "", err
	}
	if !s.IsRetry {
		if err := ord.Validate(); err != nil {
			return "", err
		}
		if ord.PaymentMethod == "" {
			ord.PaymentMethod = payment.PaymentMethodMpesa
		}
	}
	s.PhoneNumber = phone

	var res payment.ChargeResult
	if s.IsRetry {
		res, err = i.gateway.Retry(ctx, id, payment.RetryChargeRequest{
			PhoneNumber:    phone,
			OrderReference: s.OrderReference,
		})
	} else {
		res, err = i.gateway.Initiate(ctx, id, payment.ChargeRequest{
			PhoneNumber: phone,
			Order:       ord,
		})
	}
	if err != nil {
		return "", i.fail(s, err)
	}

	ref := res.OrderReference
	if s.IsRetry {
		if ref != "" && ref != s.OrderReference {
			i.logger.Warn().
				Str("order_reference", s.OrderReference).
				Str("returned_reference", ref).
				Msg("retry returned a different order reference, keeping the original")
		}
		ref = s.OrderReference
	}
	if ref == "" {
		return "", i.fail(s, domainErrors.NewTransportError("initiate", 0, "", errors.New("response carried no order reference")))
	}

	if err := s.MarkPending(ref, i.countdown); err != nil {
		return "", err
	}

	i.logger.Info().
		Str("session_id", s.ID.String()).
		Str("order_reference", ref).
		Bool("is_retry", s.IsRetry).
		Msg("stk push accepted")
	return ref, nil
}

func (i *Initiator) fail(s *payment.Session, err error) error {
	var te *domainErrors.TransportError
	if !errors.As(err, &te) {
		te = domainErrors.NewTransportError("initiate", 0, "", err)
	}

	reason := te.Message
	if reason == "" {
		reason = payment.InitiationFailureReason
	}
	if markErr := s.MarkFailed(reason); markErr != nil {
		return markErr
	}

	i.logger.Warn().
		Err(err).
		Str("session_id", s.ID.String()).
		Str("order_reference", s.OrderReference).
		Int("status_code", te.StatusCode).
		Msg("stk push failed")
	return te
}
