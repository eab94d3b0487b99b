package redis

import (
	"context"
	"time"

	domainErrors "github.com/elektrahub/checkout/internal/domain/errors"
	"github.com/redis/go-redis/v9"
)

// IdempotencyClaims marks an Idempotency-Key as in progress while its first request runs,
// so a concurrent duplicate is turned away instead of charging twice.
type IdempotencyClaims struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewIdempotencyClaims creates IdempotencyClaims. ttl bounds how long a crashed request can
// hold a key and should outlive the request timeout.
func NewIdempotencyClaims(client redis.Cmdable, ttl time.Duration) *IdempotencyClaims {
	return &IdempotencyClaims{client: client, ttl: ttl}
}

// Claim takes the key for ownerID or returns ErrDuplicateIdempotencyKey when another request
// holds it.
func (c *IdempotencyClaims) Claim(ctx context.Context, ownerID, key string) (func(context.Context) error, error) {
	lock := NewDistributedLock(c.client, IdempotencyClaimKey(ownerID, key), c.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrDuplicateIdempotencyKey
	}
	return lock.Release, nil
}

// IdempotencyClaimKey is the key a claim is held under, without the lock: prefix.
func IdempotencyClaimKey(ownerID, key string) string {
	return "checkout:idempotency:" + ownerID + ":" + key
}
