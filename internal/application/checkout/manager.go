package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elektrahub/checkout/internal/domain/customer"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/elektrahub/checkout/internal/domain/order"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/elektrahub/checkout/pkg/saga"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the session timing knobs.
type Config struct {
	PollInterval     time.Duration
	PaymentTimeout   time.Duration
	CountdownTick    time.Duration
	SessionRetention time.Duration
	PublishTimeout   time.Duration
}

// DefaultConfig returns the timings the storefront checkout has always used.
func DefaultConfig() Config {
	return Config{
		PollInterval:     5 * time.Second,
		PaymentTimeout:   120 * time.Second,
		CountdownTick:    time.Second,
		SessionRetention: 10 * time.Minute,
		PublishTimeout:   2 * time.Second,
	}
}

// StartRequest is a customer's request to pay for a new order.
type StartRequest struct {
	PhoneNumber string
	Order       payment.OrderPayload
}

// Deps are the collaborators of a Manager. Locker, Publisher and Recorder are optional.
type Deps struct {
	Gateway   Gateway
	Locker    OrderLocker
	Publisher EventPublisher
	Recorder  Recorder
}

type entry struct {
	runner *Runner
	owner  string
	order  payment.OrderPayload
}

// Manager keeps the live payment sessions of this instance.
type Manager struct {
	cfg       Config
	gateway   Gateway
	initiator *Initiator
	poller    *Poller
	locker    OrderLocker
	publisher EventPublisher
	recorder  Recorder
	logger    zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
}

// NewManager creates a Manager.
func NewManager(cfg Config, deps Deps, logger zerolog.Logger) *Manager {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())

	countdown := int(cfg.PaymentTimeout / time.Second)
	return &Manager{
		cfg:        cfg,
		gateway:    deps.Gateway,
		initiator:  NewInitiator(deps.Gateway, countdown, logger),
		poller:     NewPoller(deps.Gateway, cfg.PollInterval, cfg.PaymentTimeout, recorder, logger),
		locker:     deps.Locker,
		publisher:  deps.Publisher,
		recorder:   recorder,
		logger:     logger.With().Str("component", "session_manager").Logger(),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		sessions:   make(map[uuid.UUID]*entry),
	}
}

// Start opens a session for a new order and sends the STK push. On a transport failure the
// failed session is kept, so the customer can retry it, and returned with the error.
func (m *Manager) Start(ctx context.Context, id customer.Identity, req StartRequest) (payment.Session, error) {
	if id.IsZero() {
		return payment.Session{}, domainErrors.ErrUnauthorized
	}
	return m.launch(ctx, id, payment.NewSession(id.UserID), req.PhoneNumber, req.Order)
}

// Retry replaces a failed or timed out session with a new attempt. Sessions that already
// have an order reference re-charge that order. When no new session could be created the
// old one is kept.
func (m *Manager) Retry(ctx context.Context, id customer.Identity, sessionID uuid.UUID, rawPhone string) (payment.Session, error) {
	e, err := m.lookup(id, sessionID)
	if err != nil {
		return payment.Session{}, err
	}
	if _, err := payment.NormalizePhoneNumber(rawPhone); err != nil {
		return payment.Session{}, err
	}

	prev := e.runner.Snapshot()
	next, err := prev.NextRetry()
	if err != nil {
		return payment.Session{}, err
	}

	// The previous session is dropped only once the new one exists, so a rejected retry
	// leaves it retryable.
	snap, err := m.launch(ctx, id, next, rawPhone, e.order)
	if snap.ID != uuid.Nil {
		m.remove(sessionID)
	}
	return snap, err
}

// RetryOrder re-charges an order from the customer's order history.
func (m *Manager) RetryOrder(ctx context.Context, id customer.Identity, orderReference, rawPhone string) (payment.Session, error) {
	if id.IsZero() {
		return payment.Session{}, domainErrors.ErrUnauthorized
	}
	if orderReference == "" {
		return payment.Session{}, domainErrors.ErrOrderReferenceRequired
	}
	if _, err := payment.NormalizePhoneNumber(rawPhone); err != nil {
		return payment.Session{}, err
	}

	orders, err := m.ListOrders(ctx, id)
	if err != nil {
		return payment.Session{}, err
	}
	o, ok := order.Find(orders, orderReference)
	if !ok {
		return payment.Session{}, domainErrors.ErrOrderNotFound
	}
	if !o.CanRetryPayment() {
		return payment.Session{}, domainErrors.ErrRetryNotAllowed
	}

	for sessionID, e := range m.ownedByOrder(id.UserID, orderReference) {
		if e.runner.Snapshot().Status == payment.StatusPending {
			return payment.Session{}, domainErrors.ErrSessionActive
		}
		m.remove(sessionID)
	}

	s, err := payment.NewRetrySession(id.UserID, orderReference)
	if err != nil {
		return payment.Session{}, err
	}
	return m.launch(ctx, id, s, rawPhone, payment.OrderPayload{
		TotalAmount:   o.TotalAmount,
		Address:       o.Address,
		PaymentMethod: o.PaymentMethod,
	})
}

// Get returns the current state of a session owned by the caller.
func (m *Manager) Get(id customer.Identity, sessionID uuid.UUID) (payment.Session, error) {
	e, err := m.lookup(id, sessionID)
	if err != nil {
		return payment.Session{}, err
	}
	return e.runner.Snapshot(), nil
}

// Close is called when the customer leaves the payment view. Timers are cancelled and the
// session is forgotten.
func (m *Manager) Close(id customer.Identity, sessionID uuid.UUID) error {
	if _, err := m.lookup(id, sessionID); err != nil {
		return err
	}
	m.remove(sessionID)
	return nil
}

// ListOrders returns the caller's orders, grouped by order reference.
func (m *Manager) ListOrders(ctx context.Context, id customer.Identity) ([]order.Order, error) {
	if id.IsZero() {
		return nil, domainErrors.ErrUnauthorized
	}
	records, err := m.gateway.ListOrders(ctx, id)
	if err != nil {
		return nil, err
	}
	return order.Aggregate(records), nil
}

// Run drops finished sessions once they have been kept for the retention period.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.SessionRetention / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.sweep(time.Now()); n > 0 {
				m.logger.Debug().Int("removed", n).Msg("swept finished sessions")
			}
		}
	}
}

// Shutdown closes every session and waits for their timers and locks to be released.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.sessions))
	for sessionID, e := range m.sessions {
		runners = append(runners, e.runner)
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	m.baseCancel()
	for _, r := range runners {
		r.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Int("sessions", len(runners)).Msg("session manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveSessions returns the number of sessions waiting for a payment outcome.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.sessions {
		if e.runner.Snapshot().Status == payment.StatusPending {
			n++
		}
	}
	return n
}

func (m *Manager) launch(ctx context.Context, id customer.Identity, s *payment.Session, rawPhone string, ord payment.OrderPayload) (payment.Session, error) {
	var lock OrderLock

	// A retry locks its order before the STK push; a new order only has a reference after it.
	charge := saga.New("charge").
		AddStep(saga.Step{
			Name: "lock_order",
			Execute: func(ctx context.Context) error {
				if !s.IsRetry {
					return nil
				}
				var err error
				lock, err = m.lock(ctx, s.OrderReference)
				return err
			},
			Compensate: func(context.Context) error {
				m.release(lock, s.OrderReference)
				lock = nil
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "stk_push",
			Execute: func(ctx context.Context) error {
				ref, err := m.initiator.Initiate(ctx, id, s, rawPhone, ord)
				if err != nil {
					return err
				}
				if lock == nil {
					lock, _ = m.lock(ctx, ref)
				}
				return nil
			},
		})

	err := saga.Cause(charge.Execute(ctx))
	if err != nil && s.Status != payment.StatusFailed {
		return payment.Session{}, err
	}

	runner := newRunner(s, m.cfg.CountdownTick, m.finished, m.logger)
	snap := runner.Snapshot()

	m.mu.Lock()
	m.sessions[s.ID] = &entry{runner: runner, owner: id.UserID, order: ord}
	m.mu.Unlock()

	m.recorder.SessionStarted(s.IsRetry)
	m.publish(snap)
	if snap.IsTerminal() {
		m.recorder.SessionFinished(snap.Status, snap.UpdatedAt.Sub(snap.CreatedAt))
	}

	runner.start(m.baseCtx, m.poller, id)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-runner.Done()
		m.release(lock, snap.OrderReference)
	}()

	return snap, err
}

// finished is called by a runner when its session reaches a terminal state.
func (m *Manager) finished(s payment.Session) {
	m.recorder.SessionFinished(s.Status, s.UpdatedAt.Sub(s.CreatedAt))
	m.publish(s)
}

func (m *Manager) publish(s payment.Session) {
	if m.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PublishTimeout)
	defer cancel()

	if err := m.publisher.PublishSessionEvent(ctx, payment.NewSessionEvent(s)); err != nil {
		m.logger.Warn().
			Err(err).
			Str("session_id", s.ID.String()).
			Str("status", string(s.Status)).
			Msg("failed to publish session event")
		return
	}
	m.recorder.EventPublished(s.Status)
}

func (m *Manager) lock(ctx context.Context, orderReference string) (OrderLock, error) {
	if m.locker == nil {
		return nil, nil
	}
	lock, err := m.locker.Lock(ctx, orderReference)
	if err == nil {
		return lock, nil
	}
	if errors.Is(err, domainErrors.ErrSessionActive) {
		return nil, err
	}
	// The lock only guards against double charges across instances; an unreachable lock
	// store must not block payments.
	m.logger.Warn().Err(err).Str("order_reference", orderReference).Msg("order lock unavailable, continuing without it")
	return nil, nil
}

func (m *Manager) release(lock OrderLock, orderReference string) {
	if lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PublishTimeout)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		m.logger.Warn().Err(err).Str("order_reference", orderReference).Msg("failed to release order lock")
	}
}

func (m *Manager) lookup(id customer.Identity, sessionID uuid.UUID) (*entry, error) {
	if id.IsZero() {
		return nil, domainErrors.ErrUnauthorized
	}
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok || e.owner != id.UserID {
		return nil, domainErrors.ErrSessionNotFound
	}
	return e, nil
}

func (m *Manager) ownedByOrder(ownerID, orderReference string) map[uuid.UUID]*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]*entry)
	for sessionID, e := range m.sessions {
		if e.owner == ownerID && e.runner.Snapshot().OrderReference == orderReference {
			out[sessionID] = e
		}
	}
	return out
}

func (m *Manager) remove(sessionID uuid.UUID) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		e.runner.Close()
	}
}

func (m *Manager) sweep(now time.Time) int {
	m.mu.Lock()
	var stale []*Runner
	for sessionID, e := range m.sessions {
		snap := e.runner.Snapshot()
		if snap.CompletedAt != nil && now.Sub(*snap.CompletedAt) >= m.cfg.SessionRetention {
			stale = append(stale, e.runner)
			delete(m.sessions, sessionID)
		}
	}
	m.mu.Unlock()

	for _, r := range stale {
		r.Close()
	}
	return len(stale)
}
