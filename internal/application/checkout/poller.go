package checkout

import (
	"context"
	"time"

	"github.com/elektrahub/checkout/internal/domain/customer"
	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/rs/zerolog"
)

// PollResult is the terminal outcome reported by the backend.
type PollResult struct {
	Status        payment.Status
	TransactionID string
	FailureReason string
}

// Poller asks the backend for the payment status of an order until it settles.
type Poller struct {
	gateway  Gateway
	interval time.Duration
	timeout  time.Duration
	recorder Recorder
	logger   zerolog.Logger
}

// NewPoller creates a Poller that checks every interval and gives up after timeout.
func NewPoller(gateway Gateway, interval, timeout time.Duration, recorder Recorder, logger zerolog.Logger) *Poller {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Poller{
		gateway:  gateway,
		interval: interval,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Poll is a running status check loop.
type Poll struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the loop. A request in flight is left to finish and its answer is dropped.
func (p *Poll) Stop() { p.cancel() }

// Done is closed once the loop has exited and its ticker and cutoff are released.
func (p *Poll) Done() <-chan struct{} { return p.done }

// Start polls orderReference in its own goroutine. onUpdate is called at most once, with the
// first Success or Failed answer, and never after the poll has been stopped or cut off.
// Requests never overlap: ticks that fire while a request is in flight are dropped.
func (p *Poller) Start(ctx context.Context, id customer.Identity, orderReference string, onUpdate func(PollResult)) *Poll {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	poll := &Poll{cancel: cancel, done: make(chan struct{})}

	logger := p.logger.With().Str("order_reference", orderReference).Logger()

	go func() {
		defer close(poll.done)
		defer cancel()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug().Err(ctx.Err()).Msg("polling stopped")
				return
			case <-ticker.C:
			}

			report, err := p.gateway.PaymentStatus(ctx, id, orderReference)
			if ctx.Err() != nil {
				p.recorder.PollCompleted("discarded")
				return
			}
			if err != nil {
				p.recorder.PollCompleted("error")
				logger.Warn().Err(err).Msg("payment status check failed, will retry on next tick")
				continue
			}

			switch report.PaymentStatus {
			case payment.RemoteStatusSuccess:
				p.recorder.PollCompleted("success")
				onUpdate(PollResult{Status: payment.StatusSuccess, TransactionID: report.Receipt()})
				return
			case payment.RemoteStatusFailed:
				p.recorder.PollCompleted("failed")
				reason := report.FailureReason
				if reason == "" {
					reason = payment.DefaultFailureReason
				}
				onUpdate(PollResult{Status: payment.StatusFailed, FailureReason: reason})
				return
			default:
				p.recorder.PollCompleted("pending")
			}
		}
	}()

	return poll
}
