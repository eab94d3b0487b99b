package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

// Checked in order; the first match wins. Upstream auth failures must come before the
// generic upstream entries.
var errorMappings = []errorMapping{
	{domainErrors.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domainErrors.ErrOrderReferenceRequired, http.StatusBadRequest, "order_reference_required"},
	{domainErrors.ErrSessionActive, http.StatusConflict, "session_active"},
	{domainErrors.ErrRetryNotAllowed, http.StatusConflict, "retry_not_allowed"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domainErrors.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "upstream_unavailable"},
	{domainErrors.ErrUpstreamRejected, http.StatusBadGateway, "upstream_rejected"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, resp := classify(err)
	writeJSON(w, status, resp)
}

// writeSessionError answers with the session a failed request left behind, plus the error.
// Used when initiation failed after the session was created.
func writeSessionError(w http.ResponseWriter, s payment.Session, err error) {
	status, resp := classify(err)
	body := FromSession(s)
	body.Error = &resp
	writeJSON(w, status, body)
}

func classify(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Error = validationErr.Error()
		return http.StatusBadRequest, resp
	}

	// Upstream failures show the backend's own message when it sent one.
	var transportErr *domainErrors.TransportError
	if errors.As(err, &transportErr) {
		resp.Error = "storefront request failed"
		if transportErr.Message != "" {
			resp.Error = transportErr.Message
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			return m.status, resp
		}
	}

	if transportErr != nil {
		resp.Code = "upstream_error"
		return http.StatusBadGateway, resp
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		resp.Error = domainErr.Message
		return http.StatusUnprocessableEntity, resp
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	return http.StatusInternalServerError, resp
}

func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
