package checkout

import (
	"context"
	"time"

	"github.com/elektrahub/checkout/internal/domain/customer"
	"github.com/elektrahub/checkout/internal/domain/order"
	"github.com/elektrahub/checkout/internal/domain/payment"
)

// Gateway is the storefront backend as seen by a payment session. Every call carries the
// customer's identity so the backend can authorize it.
type Gateway interface {
	Initiate(ctx context.Context, id customer.Identity, req payment.ChargeRequest) (payment.ChargeResult, error)
	Retry(ctx context.Context, id customer.Identity, req payment.RetryChargeRequest) (payment.ChargeResult, error)
	PaymentStatus(ctx context.Context, id customer.Identity, orderReference string) (payment.StatusReport, error)
	ListOrders(ctx context.Context, id customer.Identity) ([]order.Record, error)
}

// TransactionManager defines the interface for transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher defines the interface for publishing session transitions.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event payment.SessionEvent) error
}

// OrderLock is a held claim on an order reference.
type OrderLock interface {
	Release(ctx context.Context) error
}

// OrderLocker makes sure only one session charges an order at a time, across instances.
// Lock returns errors.ErrSessionActive when another session holds the order.
type OrderLocker interface {
	Lock(ctx context.Context, orderReference string) (OrderLock, error)
}

// Recorder receives session measurements.
type Recorder interface {
	SessionStarted(isRetry bool)
	SessionFinished(status payment.Status, elapsed time.Duration)
	PollCompleted(result string)
	EventPublished(status payment.Status)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted(bool)                           {}
func (nopRecorder) SessionFinished(payment.Status, time.Duration) {}
func (nopRecorder) PollCompleted(string)                          {}
func (nopRecorder) EventPublished(payment.Status)                 {}
