package observability

import (
	"testing"
	"time"

	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.SessionStarted(false)
	m.SessionStarted(true)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsStarted.WithLabelValues("retry")))

	m.SessionFinished(payment.StatusTimeout, 120*time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionOutcomes.WithLabelValues("timeout")))
}

func TestMetrics_PollAndUpstream(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.PollCompleted("pending")
	m.PollCompleted("pending")
	m.PollCompleted("error")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PollRequests.WithLabelValues("pending")))

	m.ObserveUpstream("payment_status", "ok", 80*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("payment_status", "ok")))

	m.SetBreakerState("storefront", 2)
	m.BreakerRequest("storefront", "rejected")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("storefront")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerRequests.WithLabelValues("storefront", "rejected")))
}

func TestMetrics_EventsAndWorker(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.EventPublished(payment.StatusPending)
	m.EventPublished(payment.StatusSuccess)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionEventsOut.WithLabelValues("success")))

	m.MessageProcessed("checkout:session-events", "recorded", 3*time.Millisecond)
	m.MessageProcessed("checkout:session-events", "dead_lettered", time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkerMessagesProcessed.WithLabelValues("checkout:session-events", "recorded")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.WorkerProcessingDuration))
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("test", reg)
	assert.Panics(t, func() { NewMetrics("test", reg) })
}
