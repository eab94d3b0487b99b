package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/elektrahub/checkout/internal/application/checkout"
	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the owner token may delete the key.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock is a SET NX lock with an owner token.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	owner    string
	ttl      time.Duration
	acquired bool
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock once.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, err)
	}
	l.acquired = ok
	return ok, nil
}

// Release gives the lock up if this owner still holds it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.owner).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	l.acquired = false
	if result == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// IsAcquired returns whether the lock is acquired
func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}

// OrderLocker guards an order reference so one session at a time charges it,
// across every checkout instance sharing the Redis.
type OrderLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewOrderLocker creates an OrderLocker. ttl should outlive a payment session so a crashed
// instance frees the order soon after its session would have timed out.
func NewOrderLocker(client redis.Cmdable, ttl time.Duration) *OrderLocker {
	return &OrderLocker{client: client, ttl: ttl}
}

// Lock claims orderReference or returns ErrSessionActive when someone else holds it.
func (o *OrderLocker) Lock(ctx context.Context, orderReference string) (checkout.OrderLock, error) {
	if orderReference == "" {
		return nil, domainErrors.ErrOrderReferenceRequired
	}
	lock := NewDistributedLock(o.client, OrderLockKey(orderReference), o.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrSessionActive
	}
	return lock, nil
}

// OrderLockKey is the key an order reference is locked under, without the lock: prefix.
func OrderLockKey(orderReference string) string {
	return "checkout:order:" + orderReference
}
