package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elektrahub/checkout/internal/application/checkout"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/elektrahub/checkout/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]redis.XMessage
	stale   []redis.XMessage
	acked   []string
	readErr error
}

func (s *fakeSource) Read(ctx context.Context) ([]redis.XMessage, error) {
	s.mu.Lock()
	if s.readErr != nil {
		err := s.readErr
		s.readErr = nil
		s.mu.Unlock()
		return nil, err
	}
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return batch, nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Millisecond):
	}
	return nil, nil
}

func (s *fakeSource) Ack(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return nil
}

func (s *fakeSource) ClaimStale(context.Context, time.Duration) ([]redis.XMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stale
	s.stale = nil
	return out, nil
}

func (s *fakeSource) Acked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

type fakeDLQ struct {
	mu      sync.Mutex
	reasons map[string]string
	err     error
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, msg redis.XMessage, reason string) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = make(map[string]string)
	}
	d.reasons[msg.ID] = reason
	return nil
}

type countingMeasurer struct {
	mu      sync.Mutex
	results map[string]int
}

func (m *countingMeasurer) MessageProcessed(_, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]int)
	}
	m.results[result]++
}

func eventMessage(t *testing.T, id string, ev payment.SessionEvent) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]any{
		"session_id": ev.SessionID.String(),
		"status":     string(ev.Status),
		"payload":    string(payload),
	}}
}

type workerFixture struct {
	worker   *LedgerWorker
	source   *fakeSource
	dlq      *fakeDLQ
	repo     *testutil.MockAttemptRepository
	measurer *countingMeasurer
}

func newWorkerFixture(cfg Config) *workerFixture {
	f := &workerFixture{
		source:   &fakeSource{},
		dlq:      &fakeDLQ{},
		repo:     testutil.NewMockAttemptRepository(),
		measurer: &countingMeasurer{},
	}
	f.worker = NewLedgerWorker(cfg, Deps{
		Source:      f.source,
		DeadLetters: f.dlq,
		Ledger:      checkout.NewAttemptLog(f.repo, testutil.NewMockTransactionManager()),
		Measurer:    f.measurer,
	}, zerolog.Nop())
	return f
}

func TestLedgerWorker_Handle(t *testing.T) {
	valid := testutil.NewTestSessionEvent("user-1", "ORD-1", payment.StatusPending)
	noOwner := testutil.NewTestSessionEvent("", "ORD-2", payment.StatusPending)

	tests := []struct {
		name       string
		msg        func(t *testing.T) redis.XMessage
		recordErr  error
		want       string
		wantAcked  bool
		wantDLQ    bool
		wantStored bool
	}{
		{
			name:       "records a valid event",
			msg:        func(t *testing.T) redis.XMessage { return eventMessage(t, "1-0", valid) },
			want:       ResultRecorded,
			wantAcked:  true,
			wantStored: true,
		},
		{
			name: "missing payload goes to the DLQ",
			msg: func(*testing.T) redis.XMessage {
				return redis.XMessage{ID: "1-0", Values: map[string]any{"status": "pending"}}
			},
			want:      ResultDeadLettered,
			wantAcked: true,
			wantDLQ:   true,
		},
		{
			name:      "event without owner goes to the DLQ",
			msg:       func(t *testing.T) redis.XMessage { return eventMessage(t, "1-0", noOwner) },
			want:      ResultDeadLettered,
			wantAcked: true,
			wantDLQ:   true,
		},
		{
			name:      "storage failure leaves the message pending",
			msg:       func(t *testing.T) redis.XMessage { return eventMessage(t, "1-0", valid) },
			recordErr: errors.New("connection reset"),
			want:      ResultError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkerFixture(Config{})
			if tt.recordErr != nil {
				f.repo.RecordFunc = func(context.Context, *payment.Attempt) error { return tt.recordErr }
			}

			got := f.worker.Handle(context.Background(), tt.msg(t))

			assert.Equal(t, tt.want, got)
			if tt.wantAcked {
				assert.Equal(t, []string{"1-0"}, f.source.Acked())
			} else {
				assert.Empty(t, f.source.Acked())
			}
			_, inDLQ := f.dlq.reasons["1-0"]
			assert.Equal(t, tt.wantDLQ, inDLQ)
			assert.Equal(t, tt.wantStored, f.repo.GetAttempt(valid.SessionID) != nil)
			assert.Equal(t, 1, f.measurer.results[tt.want])
		})
	}
}

func TestLedgerWorker_DLQDownKeepsMessagePending(t *testing.T) {
	f := newWorkerFixture(Config{})
	f.dlq.err = errors.New("redis down")

	got := f.worker.Handle(context.Background(), redis.XMessage{ID: "7-0", Values: map[string]any{}})

	assert.Equal(t, ResultError, got)
	assert.Empty(t, f.source.Acked())
}

func TestLedgerWorker_RunConsumesAndClaims(t *testing.T) {
	f := newWorkerFixture(Config{ClaimInterval: 10 * time.Millisecond, ClaimMinIdle: time.Minute})

	pending := testutil.NewTestSessionEvent("user-1", "ORD-1", payment.StatusPending)
	success := pending
	success.Status = payment.StatusSuccess
	success.TransactionID = "QK7XH2"
	stale := testutil.NewTestSessionEvent("user-2", "ORD-9", payment.StatusTimeout)

	f.source.readErr = errors.New("i/o timeout")
	f.source.batches = [][]redis.XMessage{{
		eventMessage(t, "1-0", pending),
		eventMessage(t, "2-0", success),
	}}
	f.source.stale = []redis.XMessage{eventMessage(t, "0-5", stale)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.source.Acked()) == 3 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []string{"1-0", "2-0", "0-5"}, f.source.Acked())
	stored := f.repo.GetAttempt(pending.SessionID)
	require.NotNil(t, stored)
	assert.Equal(t, payment.StatusSuccess, stored.Status)
	assert.Len(t, f.repo.Transitions(pending.SessionID), 2)
	assert.NotNil(t, f.repo.GetAttempt(stale.SessionID))
}

type fakeCleaner struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeCleaner) Cleanup(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 2, nil
}

func (c *fakeCleaner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestLedgerWorker_RunsCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	w := NewLedgerWorker(Config{CleanupEvery: 10 * time.Millisecond}, Deps{
		Source:      &fakeSource{},
		DeadLetters: &fakeDLQ{},
		Ledger:      checkout.NewAttemptLog(testutil.NewMockAttemptRepository(), testutil.NewMockTransactionManager()),
		Cleaner:     cleaner,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return cleaner.Calls() >= 2 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestNewLedgerWorker_DefaultsStream(t *testing.T) {
	w := NewLedgerWorker(Config{}, Deps{}, zerolog.Nop())
	assert.Equal(t, "checkout:session-events", w.cfg.Stream)
}
