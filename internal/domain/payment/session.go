package payment

import (
	"time"

	"github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the payment session status in the state machine
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPending    Status = "pending"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

const (
	// DefaultFailureReason is used when the backend reports a failure without a reason.
	DefaultFailureReason = "Payment failed"
	// InitiationFailureReason is used when the STK push request fails without a server message.
	InitiationFailureReason = "Failed to initiate payment"
)

// Next actions offered to the customer once a session is over.
const (
	NextActionNone         = ""
	NextActionRetryPayment = "retry_payment"
	NextActionCheckOrders  = "check_orders"
)

// Session tracks one M-Pesa payment attempt from phone entry to a terminal outcome.
// It is never persisted; the order record on the storefront backend is the durable state.
type Session struct {
	ID               uuid.UUID
	OwnerID          string
	OrderReference   string
	PhoneNumber      string
	Status           Status
	TransactionID    string
	FailureReason    string
	RemainingSeconds int
	IsRetry          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// NewSession creates a session for a fresh order. The order reference is assigned by the
// backend on initiation.
func NewSession(ownerID string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Status:    StatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewRetrySession creates a session that re-charges an existing order.
func NewRetrySession(ownerID, orderReference string) (*Session, error) {
	if orderReference == "" {
		return nil, errors.ErrOrderReferenceRequired
	}
	s := NewSession(ownerID)
	s.OrderReference = orderReference
	s.IsRetry = true
	return s, nil
}

// CanTransitionTo checks if the session can transition to the given status
func (s *Session) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusNotStarted: {
			StatusPending,
			StatusFailed, // Initiation rejected
		},
		StatusPending: {
			StatusSuccess,
			StatusFailed,
			StatusTimeout,
		},
		StatusSuccess: {}, // Terminal state
		StatusFailed:  {}, // Terminal state
		StatusTimeout: {}, // Terminal state
	}

	allowedTransitions, exists := transitions[s.Status]
	if !exists {
		return false
	}

	for _, allowed := range allowedTransitions {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the session to a new status
func (s *Session) TransitionTo(newStatus Status) error {
	if !s.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(s.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	s.Status = newStatus
	s.UpdatedAt = time.Now()

	if s.IsTerminal() {
		now := s.UpdatedAt
		s.CompletedAt = &now
		s.RemainingSeconds = 0
	}

	return nil
}

// MarkPending records a successful STK push for orderReference and starts the display
// countdown at countdownSeconds.
func (s *Session) MarkPending(orderReference string, countdownSeconds int) error {
	if orderReference == "" {
		return errors.ErrOrderReferenceRequired
	}
	if s.OrderReference != "" && s.OrderReference != orderReference {
		return errors.ErrOrderReferenceChanged
	}
	if err := s.TransitionTo(StatusPending); err != nil {
		return err
	}
	s.OrderReference = orderReference
	s.RemainingSeconds = countdownSeconds
	return nil
}

// MarkSucceeded transitions the session to success
func (s *Session) MarkSucceeded(transactionID string) error {
	if err := s.TransitionTo(StatusSuccess); err != nil {
		return err
	}
	s.TransactionID = transactionID
	return nil
}

// MarkFailed transitions the session to failed
func (s *Session) MarkFailed(reason string) error {
	if err := s.TransitionTo(StatusFailed); err != nil {
		return err
	}
	if reason == "" {
		reason = DefaultFailureReason
	}
	s.FailureReason = reason
	return nil
}

// MarkTimedOut transitions the session to timeout. The real outcome is unknown at this point.
func (s *Session) MarkTimedOut() error {
	return s.TransitionTo(StatusTimeout)
}

// Tick advances the display countdown by one second while pending and reports whether it
// has just run out.
func (s *Session) Tick() (remaining int, expired bool) {
	if s.Status != StatusPending {
		return s.RemainingSeconds, false
	}
	if s.RemainingSeconds > 0 {
		s.RemainingSeconds--
	}
	return s.RemainingSeconds, s.RemainingSeconds == 0
}

// IsTerminal checks if the session is in a terminal state
func (s *Session) IsTerminal() bool {
	return s.Status == StatusSuccess ||
		s.Status == StatusFailed ||
		s.Status == StatusTimeout
}

// CanRetry checks if the customer may start another attempt from this session
func (s *Session) CanRetry() bool {
	return s.Status == StatusFailed || s.Status == StatusTimeout
}

// NextRetry returns the session a customer-initiated retry starts from. Once the backend has
// assigned an order reference the retry re-charges that order; a session whose STK push was
// never accepted starts over as a fresh order.
func (s *Session) NextRetry() (*Session, error) {
	if !s.CanRetry() {
		return nil, errors.ErrRetryNotAllowed
	}
	if s.OrderReference == "" {
		return NewSession(s.OwnerID), nil
	}
	return NewRetrySession(s.OwnerID, s.OrderReference)
}

// NextAction tells the customer what to do after a terminal outcome.
func (s *Session) NextAction() string {
	switch s.Status {
	case StatusFailed:
		return NextActionRetryPayment
	case StatusTimeout:
		return NextActionCheckOrders
	default:
		return NextActionNone
	}
}

// Snapshot returns a copy that is safe to hand out while the original keeps changing.
func (s *Session) Snapshot() Session {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
