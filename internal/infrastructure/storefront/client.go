package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elektrahub/checkout/internal/domain/customer"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/order"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const breakerName = "storefront"

// Operation names used in errors and metrics.
const (
	opInitiate      = "initiate"
	opRetry         = "retry"
	opPaymentStatus = "payment_status"
	opListOrders    = "list_orders"
)

var (
	errServerError = errors.New("storefront server error")
	// errCallerGone marks a call abandoned by its own caller; it says nothing about backend health.
	errCallerGone = errors.New("request abandoned by caller")
)

// Observer receives upstream call measurements.
type Observer interface {
	ObserveUpstream(operation, outcome string, elapsed time.Duration)
	SetBreakerState(name string, state int)
	BreakerRequest(name, result string)
}

type nopObserver struct{}

func (nopObserver) ObserveUpstream(string, string, time.Duration) {}
func (nopObserver) SetBreakerState(string, int)                   {}
func (nopObserver) BreakerRequest(string, string)                 {}

// Options configures a Client.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	Observer         Observer
	Logger           zerolog.Logger
}

// Client talks to the storefront backend REST API. Calls are never retried; a circuit
// breaker short-circuits them while the backend keeps failing.
type Client struct {
	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker[*resty.Response]
	observer Observer
	logger   zerolog.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	threshold := opts.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	logger := opts.Logger.With().Str("component", "storefront_client").Logger()

	hc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("Accept", "application/json")

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observer.SetBreakerState(name, breakerStateValue(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &Client{
		http:     hc,
		breaker:  breaker,
		observer: observer,
		logger:   logger,
	}
}

// Initiate asks the backend to create an order and send an STK push for it.
func (c *Client) Initiate(ctx context.Context, id customer.Identity, req payment.ChargeRequest) (payment.ChargeResult, error) {
	var out chargeResponse
	err := c.do(ctx, opInitiate, id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(initiateRequest{
			TotalAmount:   json.Number(req.Order.TotalAmount.String()),
			Address:       req.Order.Address,
			PaymentMethod: req.Order.PaymentMethod,
			PhoneNumber:   req.PhoneNumber,
		}).SetResult(&out).Post("/mpesa/initiate")
	})
	if err != nil {
		return payment.ChargeResult{}, err
	}
	return payment.ChargeResult{OrderReference: out.OrderReference}, nil
}

// Retry asks the backend to send a new STK push for an existing order.
func (c *Client) Retry(ctx context.Context, id customer.Identity, req payment.RetryChargeRequest) (payment.ChargeResult, error) {
	var out chargeResponse
	err := c.do(ctx, opRetry, id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(retryRequest{
			PhoneNumber:    req.PhoneNumber,
			OrderReference: req.OrderReference,
		}).SetResult(&out).Post("/mpesa/retry")
	})
	if err != nil {
		return payment.ChargeResult{}, err
	}
	return payment.ChargeResult{OrderReference: out.OrderReference}, nil
}

// PaymentStatus reads the current payment status of an order.
func (c *Client) PaymentStatus(ctx context.Context, id customer.Identity, orderReference string) (payment.StatusReport, error) {
	var out statusResponse
	err := c.do(ctx, opPaymentStatus, id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("reference", orderReference).
			SetResult(&out).
			Get("/payment/status/{reference}")
	})
	if err != nil {
		return payment.StatusReport{}, err
	}
	return payment.StatusReport{
		PaymentStatus: out.PaymentStatus,
		TransactionID: out.TransactionID,
		MpesaReceipt:  out.MpesaReceipt,
		FailureReason: out.FailureReason,
	}, nil
}

// ListOrders returns the customer's order records. Both a bare JSON array and an
// {"orders": [...]} envelope are accepted.
func (c *Client) ListOrders(ctx context.Context, id customer.Identity) ([]order.Record, error) {
	var body []byte
	err := c.do(ctx, opListOrders, id, func(r *resty.Request) (*resty.Response, error) {
		resp, err := r.Get("/orders")
		if err == nil {
			body = resp.Body()
		}
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(body)
}

func decodeOrders(body []byte) ([]order.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []order.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, domainErrors.NewTransportError(opListOrders, http.StatusOK, "", fmt.Errorf("decode orders: %w", err))
		}
		return records, nil
	}
	var env ordersEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, domainErrors.NewTransportError(opListOrders, http.StatusOK, "", fmt.Errorf("decode orders: %w", err))
	}
	return env.Orders, nil
}

// do runs one request through the breaker and turns every failure into a *TransportError.
// Only network errors and 5xx answers count against the breaker; calls the caller cancelled
// or let time out are excluded.
func (c *Client) do(ctx context.Context, op string, id customer.Identity, send func(*resty.Request) (*resty.Response, error)) error {
	start := time.Now()

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(id.BearerToken).
			SetError(&errorResponse{})
		resp, err := send(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerGone, err)
			}
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, errServerError
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.observer.BreakerRequest(breakerName, "rejected")
		c.observer.ObserveUpstream(op, "rejected", time.Since(start))
		return domainErrors.NewTransportError(op, 0, "", fmt.Errorf("%w: %v", domainErrors.ErrUpstreamUnavailable, err))
	case errors.Is(err, errCallerGone):
		c.observer.ObserveUpstream(op, "cancelled", time.Since(start))
		return domainErrors.NewTransportError(op, 0, "", ctx.Err())
	case err != nil && resp == nil:
		c.observer.BreakerRequest(breakerName, "failure")
		c.observer.ObserveUpstream(op, "network_error", time.Since(start))
		return domainErrors.NewTransportError(op, 0, "", err)
	}

	c.observer.ObserveUpstream(op, outcome(resp.StatusCode()), time.Since(start))
	if err == nil {
		c.observer.BreakerRequest(breakerName, "success")
	} else {
		c.observer.BreakerRequest(breakerName, "failure")
	}

	if resp.IsError() {
		msg, _ := resp.Error().(*errorResponse)
		if resp.StatusCode() == http.StatusUnauthorized {
			return domainErrors.NewTransportError(op, resp.StatusCode(), msg.text(), domainErrors.ErrUnauthorized)
		}
		return domainErrors.NewTransportError(op, resp.StatusCode(), msg.text(), nil)
	}
	return nil
}

func outcome(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return "ok"
	}
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
