package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/redis/go-redis/v9"
)

const (
	SessionStream = "checkout:session-events"
	DLQStream     = "checkout:dlq"

	// Approximate cap on stream length; the attempt ledger is the durable copy.
	streamMaxLen = 100_000
)

// StreamProducer appends session transitions and dead letters to Redis streams.
type StreamProducer struct {
	client redis.Cmdable
}

func NewStreamProducer(client redis.Cmdable) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishSessionEvent appends one session transition to SessionStream.
func (p *StreamProducer) PublishSessionEvent(ctx context.Context, event payment.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: SessionStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"session_id": event.SessionID.String(),
			"status":     string(event.Status),
			"payload":    string(payload),
			"timestamp":  event.OccurredAt.Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

// PublishToDLQ parks a message the worker could not process.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error {
	original, err := json.Marshal(msg.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ data: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]any{
			"message_id": msg.ID,
			"reason":     reason,
			"payload":    string(original),
			"timestamp":  time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// ErrMalformedEvent marks a stream message that can never be decoded.
var ErrMalformedEvent = errors.New("malformed session event")

// DecodeSessionEvent reads the payload field written by PublishSessionEvent.
func DecodeSessionEvent(msg redis.XMessage) (payment.SessionEvent, error) {
	var event payment.SessionEvent
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return event, fmt.Errorf("%w: message %s has no payload", ErrMalformedEvent, msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return event, fmt.Errorf("%w: message %s: %v", ErrMalformedEvent, msg.ID, err)
	}
	return event, nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

// CreateGroup creates the consumer group and the stream if needed.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to the block duration and returns new messages for this consumer.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but never acked within minIdle.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return messages, nil
}
