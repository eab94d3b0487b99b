package checkout

import (
	"context"
	"fmt"

	"github.com/elektrahub/checkout/internal/domain/customer"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/google/uuid"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 100
)

// AttemptLog writes session events into the attempt ledger and reads a customer's history back.
type AttemptLog struct {
	repo      payment.AttemptRepository
	txManager TransactionManager
}

// NewAttemptLog creates an AttemptLog.
func NewAttemptLog(repo payment.AttemptRepository, txManager TransactionManager) *AttemptLog {
	return &AttemptLog{repo: repo, txManager: txManager}
}

// Record stores the state carried by a session event.
func (l *AttemptLog) Record(ctx context.Context, ev payment.SessionEvent) error {
	if ev.SessionID == uuid.Nil {
		return domainErrors.NewValidationError("session_id", "is required")
	}
	if ev.OwnerID == "" {
		return domainErrors.NewValidationError("owner_id", "is required")
	}
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := l.repo.Record(txCtx, ev.Attempt()); err != nil {
			return err
		}
		return l.repo.AppendTransition(txCtx, ev.Transition())
	})
	if err != nil {
		return fmt.Errorf("record attempt %s: %w", ev.SessionID, err)
	}
	return nil
}

// List returns the caller's attempts for an order, newest first.
func (l *AttemptLog) List(ctx context.Context, id customer.Identity, orderReference string, limit int) ([]*payment.Attempt, error) {
	if id.IsZero() {
		return nil, domainErrors.ErrUnauthorized
	}
	if orderReference == "" {
		return nil, domainErrors.ErrOrderReferenceRequired
	}
	if limit <= 0 {
		limit = defaultAttemptLimit
	}
	if limit > maxAttemptLimit {
		limit = maxAttemptLimit
	}
	return l.repo.ListByOrderReference(ctx, id.UserID, orderReference, limit)
}
