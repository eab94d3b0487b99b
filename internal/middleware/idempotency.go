package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/infrastructure/postgres"
	"github.com/rs/zerolog"
)

const maxIdempotencyBodySize = 1 << 20

// IdempotencyStore keeps the first response per caller and Idempotency-Key.
type IdempotencyStore interface {
	Get(ctx context.Context, ownerID, key string) (*postgres.IdempotencyEntry, error)
	Set(ctx context.Context, entry *postgres.IdempotencyEntry) error
}

// IdempotencyClaimer marks a key as in progress. Claim returns
// errors.ErrDuplicateIdempotencyKey while another request holds the key.
type IdempotencyClaimer interface {
	Claim(ctx context.Context, ownerID, key string) (release func(context.Context) error, err error)
}

// Idempotency replays the stored response when a caller repeats a request with the same
// Idempotency-Key. With a claimer, a duplicate that arrives while the first request is still
// running gets 409 instead of sending a second STK push; without one only completed requests
// are deduplicated. It must run after RequireAuth. Server errors are not stored and may be
// retried.
func Idempotency(store IdempotencyStore, claims IdempotencyClaimer, ttl time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			id, authenticated := IdentityFrom(r.Context())
			if key == "" || !authenticated {
				next.ServeHTTP(w, r)
				return
			}

			lookup := func() bool {
				entry, err := store.Get(r.Context(), id.UserID, key)
				if err != nil {
					logger.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed")
				}
				if entry == nil {
					return false
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(entry.ResponseStatus)
				w.Write(entry.ResponseBody)
				return true
			}

			if lookup() {
				return
			}

			if claims != nil {
				release, err := claims.Claim(r.Context(), id.UserID, key)
				switch {
				case errors.Is(err, domainErrors.ErrDuplicateIdempotencyKey):
					writeConflict(w)
					return
				case err != nil:
					logger.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency claim failed")
				default:
					defer func() {
						if err := release(context.WithoutCancel(r.Context())); err != nil {
							logger.Warn().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency claim")
						}
					}()
					// The first request may have finished between the lookup and the claim.
					if lookup() {
						return
					}
				}
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			now := time.Now()
			err := store.Set(context.WithoutCancel(r.Context()), &postgres.IdempotencyEntry{
				Key:            key,
				OwnerID:        id.UserID,
				ResponseBody:   rec.body.Bytes(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(ttl),
			})
			if err != nil {
				logger.Warn().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent response")
			}
		})
	}
}

func writeConflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "a request with this Idempotency-Key is still being processed",
		"code":  "duplicate_request",
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
