package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Attempt is the audit record of one payment session. It is written after the fact from
// session events and is never read back into a live session.
type Attempt struct {
	SessionID      uuid.UUID
	OwnerID        string
	OrderReference string
	MaskedPhone    string
	Status         Status
	IsRetry        bool
	TransactionID  string
	FailureReason  string
	StartedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Transition is one status change of an attempt, kept as an append-only history.
type Transition struct {
	SessionID     uuid.UUID
	Status        Status
	TransactionID string
	FailureReason string
	OccurredAt    time.Time
}

// AttemptRepository defines the interface for the attempt audit ledger
type AttemptRepository interface {
	// Record inserts or advances the attempt for a session. A terminal attempt is never
	// overwritten.
	Record(ctx context.Context, attempt *Attempt) error

	// ListByOrderReference lists a customer's attempts for an order, newest first.
	ListByOrderReference(ctx context.Context, ownerID, orderReference string, limit int) ([]*Attempt, error)

	// AppendTransition adds a status change to the attempt's history. Replays of the same
	// transition are ignored.
	AppendTransition(ctx context.Context, t *Transition) error
}

// SessionEvent is published on every session transition.
type SessionEvent struct {
	SessionID      uuid.UUID `json:"session_id"`
	OwnerID        string    `json:"owner_id"`
	OrderReference string    `json:"order_reference,omitempty"`
	MaskedPhone    string    `json:"masked_phone,omitempty"`
	Status         Status    `json:"status"`
	IsRetry        bool      `json:"is_retry"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewSessionEvent captures the current state of s.
func NewSessionEvent(s Session) SessionEvent {
	return SessionEvent{
		SessionID:      s.ID,
		OwnerID:        s.OwnerID,
		OrderReference: s.OrderReference,
		MaskedPhone:    MaskPhoneNumber(s.PhoneNumber),
		Status:         s.Status,
		IsRetry:        s.IsRetry,
		TransactionID:  s.TransactionID,
		FailureReason:  s.FailureReason,
		StartedAt:      s.CreatedAt,
		OccurredAt:     s.UpdatedAt,
	}
}

// Transition returns the status change carried by the event.
func (e SessionEvent) Transition() *Transition {
	return &Transition{
		SessionID:     e.SessionID,
		Status:        e.Status,
		TransactionID: e.TransactionID,
		FailureReason: e.FailureReason,
		OccurredAt:    e.OccurredAt,
	}
}

// Attempt converts the event into its ledger record.
func (e SessionEvent) Attempt() *Attempt {
	a := &Attempt{
		SessionID:      e.SessionID,
		OwnerID:        e.OwnerID,
		OrderReference: e.OrderReference,
		MaskedPhone:    e.MaskedPhone,
		Status:         e.Status,
		IsRetry:        e.IsRetry,
		TransactionID:  e.TransactionID,
		FailureReason:  e.FailureReason,
		StartedAt:      e.StartedAt,
		UpdatedAt:      e.OccurredAt,
	}
	if e.Status == StatusSuccess || e.Status == StatusFailed || e.Status == StatusTimeout {
		t := e.OccurredAt
		a.CompletedAt = &t
	}
	return a
}
