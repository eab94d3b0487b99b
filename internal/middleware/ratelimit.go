package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit caps requests per customer, or per IP for unauthenticated calls. It guards the
// routes that trigger STK pushes on the customer's phone.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(keyByCustomer),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "too many payment requests, please wait before trying again",
				"code":  "rate_limit",
			})
		}),
	)
}

func keyByCustomer(r *http.Request) (string, error) {
	if id, ok := IdentityFrom(r.Context()); ok {
		return "customer:" + id.UserID, nil
	}
	return httprate.KeyByIP(r)
}
