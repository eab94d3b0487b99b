package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/elektrahub/checkout/internal/domain/customer"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/rs/zerolog"
)

// Runner hosts one session. While the session is pending it owns three timers: the poll
// ticker and cutoff (inside the Poll) and the display countdown. All three are acquired
// together in start and released together when run returns, whatever the exit path.
type Runner struct {
	mu      sync.Mutex
	session *payment.Session
	closed  bool
	cancel  context.CancelFunc

	done   chan struct{}
	tick   time.Duration
	notify func(payment.Session)
	logger zerolog.Logger
}

func newRunner(s *payment.Session, tick time.Duration, notify func(payment.Session), logger zerolog.Logger) *Runner {
	if notify == nil {
		notify = func(payment.Session) {}
	}
	return &Runner{
		session: s,
		done:    make(chan struct{}),
		tick:    tick,
		notify:  notify,
		logger: logger.With().
			Str("component", "runner").
			Str("session_id", s.ID.String()).
			Logger(),
	}
}

// Snapshot returns the current state of the session.
func (r *Runner) Snapshot() payment.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Snapshot()
}

// Done is closed once every timer owned by the runner is released.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Close tears the session down. Nothing that resolves afterwards changes its state.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Runner) start(ctx context.Context, poller *Poller, id customer.Identity) {
	r.mu.Lock()
	if r.closed || r.session.Status != payment.StatusPending {
		r.mu.Unlock()
		close(r.done)
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	ref := r.session.OrderReference
	r.mu.Unlock()

	// onUpdate fires at most once, so a single slot never blocks the poller.
	results := make(chan PollResult, 1)
	poll := poller.Start(ctx, id, ref, func(res PollResult) { results <- res })

	go r.run(ctx, cancel, poll, results)
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, poll *Poll, results <-chan PollResult) {
	countdown := time.NewTicker(r.tick)
	defer close(r.done)
	defer func() {
		countdown.Stop()
		cancel()
		<-poll.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("session closed while pending")
			return
		case res := <-results:
			r.settle(ctx, res)
			return
		case <-poll.Done():
			r.expire(ctx, results)
			return
		case <-countdown.C:
			r.mu.Lock()
			_, expired := r.session.Tick()
			r.mu.Unlock()
			if expired {
				r.expire(ctx, results)
				return
			}
		}
	}
}

// expire times the session out unless the backend already answered. A server result that is
// ready in the same instant as the local timeout takes precedence.
func (r *Runner) expire(ctx context.Context, results <-chan PollResult) {
	select {
	case res := <-results:
		r.settle(ctx, res)
		return
	default:
	}
	r.apply(ctx, func(s *payment.Session) error { return s.MarkTimedOut() })
}

func (r *Runner) settle(ctx context.Context, res PollResult) {
	r.apply(ctx, func(s *payment.Session) error {
		if res.Status == payment.StatusSuccess {
			return s.MarkSucceeded(res.TransactionID)
		}
		return s.MarkFailed(res.FailureReason)
	})
}

func (r *Runner) apply(ctx context.Context, transition func(*payment.Session) error) {
	r.mu.Lock()
	if r.closed || ctx.Err() != nil {
		r.mu.Unlock()
		r.logger.Debug().Msg("discarding late update for closed session")
		return
	}
	if err := transition(r.session); err != nil {
		r.mu.Unlock()
		r.logger.Warn().Err(err).Msg("session transition rejected")
		return
	}
	snap := r.session.Snapshot()
	r.mu.Unlock()

	r.logger.Info().
		Str("order_reference", snap.OrderReference).
		Str("status", string(snap.Status)).
		Msg("payment session finished")
	r.notify(snap)
}
