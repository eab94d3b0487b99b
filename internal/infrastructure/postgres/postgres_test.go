package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestMigrate_UnknownDirection(t *testing.T) {
	err := Migrate("postgres://localhost:1/none", Direction("sideways"))
	assert.Error(t, err)
}

var (
	containerOnce sync.Once
	container     *tcpostgres.PostgresContainer
	containerURL  string
	containerErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = testcontainers.TerminateContainer(container)
	}
	os.Exit(code)
}

// testDatabaseURL prefers CHECKOUT_TEST_DATABASE_URL and otherwise starts a throwaway
// Postgres container. Tests are skipped when neither is available.
func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("CHECKOUT_TEST_DATABASE_URL"); url != "" {
		return url
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		container, containerErr = tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("checkout_test"),
			tcpostgres.WithUsername("checkout"),
			tcpostgres.WithPassword("checkout"),
			tcpostgres.BasicWaitStrategies(),
		)
		if containerErr != nil {
			return
		}
		containerURL, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Skipf("no test database: %v", containerErr)
	}
	return containerURL
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := testDatabaseURL(t)
	require.NoError(t, Migrate(url, Up))

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(context.Background(), `TRUNCATE payment_attempts, payment_attempt_transitions, idempotency_keys`)
		pool.Close()
	})
	return pool
}

func newAttempt(owner, ref string, status payment.Status, startedAt time.Time) *payment.Attempt {
	return &payment.Attempt{
		SessionID:      uuid.New(),
		OwnerID:        owner,
		OrderReference: ref,
		MaskedPhone:    "2547*****678",
		Status:         status,
		StartedAt:      startedAt,
		UpdatedAt:      startedAt,
	}
}

func TestAttemptRepository_TerminalRowIsFinal(t *testing.T) {
	pool := testPool(t)
	repo := NewAttemptRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := newAttempt("user-1", "ORD-1", payment.StatusPending, now)
	require.NoError(t, repo.Record(ctx, a))

	done := *a
	done.Status = payment.StatusSuccess
	done.TransactionID = "QKX81H2Z"
	done.UpdatedAt = now.Add(10 * time.Second)
	done.CompletedAt = &done.UpdatedAt
	require.NoError(t, repo.Record(ctx, &done))

	// A replayed pending event arrives late.
	require.NoError(t, repo.Record(ctx, a))

	got, err := repo.ListByOrderReference(ctx, "user-1", "ORD-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, payment.StatusSuccess, got[0].Status)
	assert.Equal(t, "QKX81H2Z", got[0].TransactionID)
	require.NotNil(t, got[0].CompletedAt)
}

func TestAttemptRepository_ListScopedAndOrdered(t *testing.T) {
	pool := testPool(t)
	repo := NewAttemptRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	older := newAttempt("user-1", "ORD-1", payment.StatusTimeout, now.Add(-5*time.Minute))
	newer := newAttempt("user-1", "ORD-1", payment.StatusPending, now)
	newer.IsRetry = true
	foreign := newAttempt("user-2", "ORD-1", payment.StatusFailed, now)
	for _, a := range []*payment.Attempt{older, newer, foreign} {
		require.NoError(t, repo.Record(ctx, a))
	}

	got, err := repo.ListByOrderReference(ctx, "user-1", "ORD-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.SessionID, got[0].SessionID)
	assert.True(t, got[0].IsRetry)
	assert.Equal(t, older.SessionID, got[1].SessionID)

	limited, err := repo.ListByOrderReference(ctx, "user-1", "ORD-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAttemptRepository_TransitionsInTransaction(t *testing.T) {
	pool := testPool(t)
	repo := NewAttemptRepository(pool)
	tx := NewTxManager(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	a := newAttempt("user-1", "ORD-7", payment.StatusPending, now)
	tr := &payment.Transition{SessionID: a.SessionID, Status: payment.StatusPending, OccurredAt: now}

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repo.Record(ctx, a); err != nil {
			return err
		}
		if err := repo.AppendTransition(ctx, tr); err != nil {
			return err
		}
		return repo.AppendTransition(ctx, tr)
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_attempt_transitions WHERE session_id = $1`, a.SessionID).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestIdempotencyRepository(t *testing.T) {
	pool := testPool(t)
	repo := NewIdempotencyRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	miss, err := repo.Get(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, repo.Set(ctx, &IdempotencyEntry{
		Key: "key-1", OwnerID: "user-1", ResponseBody: []byte(`{"id":"a"}`), ResponseStatus: 201,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.Set(ctx, &IdempotencyEntry{
		Key: "key-1", OwnerID: "user-1", ResponseBody: []byte(`{"id":"b"}`), ResponseStatus: 201,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.Set(ctx, &IdempotencyEntry{
		Key: "key-old", OwnerID: "user-1", ResponseBody: []byte(`{}`), ResponseStatus: 201,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	hit, err := repo.Get(ctx, "user-1", "key-1")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.JSONEq(t, `{"id":"a"}`, string(hit.ResponseBody))

	other, err := repo.Get(ctx, "user-2", "key-1")
	require.NoError(t, err)
	assert.Nil(t, other)

	removed, err := repo.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
