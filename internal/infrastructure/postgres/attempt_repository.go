package postgres

import (
	"context"
	"fmt"

	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository implements payment.AttemptRepository.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Record upserts by session id. Rows that already reached a terminal status stay as they are,
// so a replayed pending event cannot undo a recorded outcome.
func (r *AttemptRepository) Record(ctx context.Context, a *payment.Attempt) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO payment_attempts (
			session_id, owner_id, order_reference, masked_phone, status, is_retry,
			transaction_id, failure_reason, started_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO UPDATE SET
			order_reference = COALESCE(NULLIF(EXCLUDED.order_reference, ''), payment_attempts.order_reference),
			status          = EXCLUDED.status,
			transaction_id  = EXCLUDED.transaction_id,
			failure_reason  = EXCLUDED.failure_reason,
			updated_at      = EXCLUDED.updated_at,
			completed_at    = EXCLUDED.completed_at
		WHERE payment_attempts.status NOT IN ('success', 'failed', 'timeout')`,
		a.SessionID, a.OwnerID, a.OrderReference, a.MaskedPhone, string(a.Status), a.IsRetry,
		a.TransactionID, a.FailureReason, a.StartedAt, a.UpdatedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) ListByOrderReference(ctx context.Context, ownerID, orderReference string, limit int) ([]*payment.Attempt, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT session_id, owner_id, order_reference, masked_phone, status, is_retry,
		       transaction_id, failure_reason, started_at, updated_at, completed_at
		FROM payment_attempts
		WHERE owner_id = $1 AND order_reference = $2
		ORDER BY started_at DESC
		LIMIT $3`,
		ownerID, orderReference, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*payment.Attempt
	for rows.Next() {
		a := &payment.Attempt{}
		var status string
		if err := rows.Scan(
			&a.SessionID, &a.OwnerID, &a.OrderReference, &a.MaskedPhone, &status, &a.IsRetry,
			&a.TransactionID, &a.FailureReason, &a.StartedAt, &a.UpdatedAt, &a.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Status = payment.Status(status)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func (r *AttemptRepository) AppendTransition(ctx context.Context, t *payment.Transition) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO payment_attempt_transitions (session_id, status, transaction_id, failure_reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, status) DO NOTHING`,
		t.SessionID, string(t.Status), t.TransactionID, t.FailureReason, t.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}
