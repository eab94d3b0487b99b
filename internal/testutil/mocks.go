package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/elektrahub/checkout/internal/application/checkout"
	"github.com/elektrahub/checkout/internal/domain/customer"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/order"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/google/uuid"
)

// --- Storefront Gateway Mock ---

// MockGateway is a mock implementation of checkout.Gateway. Unless overridden it accepts every
// STK push, reports every payment as Pending and serves the orders set with SetOrders.
type MockGateway struct {
	mu            sync.Mutex
	initiateCalls []payment.ChargeRequest
	retryCalls    []payment.RetryChargeRequest
	statusCalls   []string
	records       []order.Record

	InitiateFunc      func(ctx context.Context, id customer.Identity, req payment.ChargeRequest) (payment.ChargeResult, error)
	RetryFunc         func(ctx context.Context, id customer.Identity, req payment.RetryChargeRequest) (payment.ChargeResult, error)
	PaymentStatusFunc func(ctx context.Context, id customer.Identity, orderReference string) (payment.StatusReport, error)
	ListOrdersFunc    func(ctx context.Context, id customer.Identity) ([]order.Record, error)
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Initiate(ctx context.Context, id customer.Identity, req payment.ChargeRequest) (payment.ChargeResult, error) {
	m.mu.Lock()
	m.initiateCalls = append(m.initiateCalls, req)
	n := len(m.initiateCalls)
	m.mu.Unlock()

	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, id, req)
	}
	return payment.ChargeResult{OrderReference: fmt.Sprintf("ORD-%04d", n)}, nil
}

func (m *MockGateway) Retry(ctx context.Context, id customer.Identity, req payment.RetryChargeRequest) (payment.ChargeResult, error) {
	m.mu.Lock()
	m.retryCalls = append(m.retryCalls, req)
	m.mu.Unlock()

	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, id, req)
	}
	return payment.ChargeResult{OrderReference: req.OrderReference}, nil
}

func (m *MockGateway) PaymentStatus(ctx context.Context, id customer.Identity, orderReference string) (payment.StatusReport, error) {
	m.mu.Lock()
	m.statusCalls = append(m.statusCalls, orderReference)
	m.mu.Unlock()

	if m.PaymentStatusFunc != nil {
		return m.PaymentStatusFunc(ctx, id, orderReference)
	}
	return payment.StatusReport{PaymentStatus: payment.RemoteStatusPending}, nil
}

func (m *MockGateway) ListOrders(ctx context.Context, id customer.Identity) ([]order.Record, error) {
	if m.ListOrdersFunc != nil {
		return m.ListOrdersFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Record(nil), m.records...), nil
}

// SetOrders sets the records returned by ListOrders.
func (m *MockGateway) SetOrders(records ...order.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
}

func (m *MockGateway) InitiateCalls() []payment.ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.ChargeRequest(nil), m.initiateCalls...)
}

func (m *MockGateway) RetryCalls() []payment.RetryChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.RetryChargeRequest(nil), m.retryCalls...)
}

// StatusCalls returns the number of status checks made so far.
func (m *MockGateway) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statusCalls)
}

// --- Event Publisher Mock ---

// MockEventPublisher is a mock implementation of checkout.EventPublisher.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []payment.SessionEvent

	PublishSessionEventFunc func(ctx context.Context, event payment.SessionEvent) error
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishSessionEvent(ctx context.Context, event payment.SessionEvent) error {
	if m.PublishSessionEventFunc != nil {
		return m.PublishSessionEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Statuses returns the statuses of the published events in order.
func (m *MockEventPublisher) Statuses() []payment.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payment.Status, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Status)
	}
	return out
}

func (m *MockEventPublisher) Events() []payment.SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.SessionEvent(nil), m.events...)
}

// --- Order Locker Mock ---

// MockOrderLocker is an in-memory checkout.OrderLocker.
type MockOrderLocker struct {
	mu   sync.Mutex
	held map[string]bool

	LockFunc func(ctx context.Context, orderReference string) (checkout.OrderLock, error)
}

func NewMockOrderLocker() *MockOrderLocker {
	return &MockOrderLocker{held: make(map[string]bool)}
}

func (m *MockOrderLocker) Lock(ctx context.Context, orderReference string) (checkout.OrderLock, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, orderReference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[orderReference] {
		return nil, domainErrors.ErrSessionActive
	}
	m.held[orderReference] = true
	return &mockOrderLock{locker: m, ref: orderReference}, nil
}

// Held reports whether orderReference is currently locked.
func (m *MockOrderLocker) Held(orderReference string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[orderReference]
}

type mockOrderLock struct {
	locker *MockOrderLocker
	ref    string
}

func (l *mockOrderLock) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if !l.locker.held[l.ref] {
		return domainErrors.ErrLockNotHeld
	}
	delete(l.locker.held, l.ref)
	return nil
}

// --- Attempt Repository Mock ---

// MockAttemptRepository is a mock implementation of payment.AttemptRepository.
type MockAttemptRepository struct {
	mu          sync.Mutex
	attempts    map[uuid.UUID]*payment.Attempt
	transitions map[uuid.UUID][]*payment.Transition

	RecordFunc               func(ctx context.Context, attempt *payment.Attempt) error
	ListByOrderReferenceFunc func(ctx context.Context, ownerID, orderReference string, limit int) ([]*payment.Attempt, error)
	AppendTransitionFunc     func(ctx context.Context, t *payment.Transition) error
}

func NewMockAttemptRepository() *MockAttemptRepository {
	return &MockAttemptRepository{
		attempts:    make(map[uuid.UUID]*payment.Attempt),
		transitions: make(map[uuid.UUID][]*payment.Transition),
	}
}

func (m *MockAttemptRepository) Record(ctx context.Context, attempt *payment.Attempt) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.attempts[attempt.SessionID]; ok && existing.CompletedAt != nil {
		return nil
	}
	m.attempts[attempt.SessionID] = attempt
	return nil
}

func (m *MockAttemptRepository) ListByOrderReference(ctx context.Context, ownerID, orderReference string, limit int) ([]*payment.Attempt, error) {
	if m.ListByOrderReferenceFunc != nil {
		return m.ListByOrderReferenceFunc(ctx, ownerID, orderReference, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Attempt
	for _, a := range m.attempts {
		if a.OwnerID == ownerID && a.OrderReference == orderReference {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockAttemptRepository) AppendTransition(ctx context.Context, t *payment.Transition) error {
	if m.AppendTransitionFunc != nil {
		return m.AppendTransitionFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.transitions[t.SessionID] {
		if existing.Status == t.Status {
			return nil
		}
	}
	m.transitions[t.SessionID] = append(m.transitions[t.SessionID], t)
	return nil
}

// GetAttempt returns the stored attempt for a session.
func (m *MockAttemptRepository) GetAttempt(sessionID uuid.UUID) *payment.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[sessionID]
}

// Transitions returns the stored history of a session.
func (m *MockAttemptRepository) Transitions(sessionID uuid.UUID) []*payment.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*payment.Transition(nil), m.transitions[sessionID]...)
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}
