package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/astralisone/astralis-agency-server-sub001/pkg/database"
)

const captureLockPrefix = "checkout:capture:"

// releaseScript deletes the key only when it still holds our token, so an
// expired lock re-taken by another request is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CaptureLock is a per-order processing guard built on SET NX with a TTL.
type CaptureLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCaptureLock creates a capture guard. ttl bounds how long a crashed
// request can block captures of the same order.
func NewCaptureLock(client redis.UniversalClient, ttl time.Duration) *CaptureLock {
	return &CaptureLock{client: client, ttl: ttl}
}

// Acquire takes the lock for providerOrderID.
func (l *CaptureLock) Acquire(ctx context.Context, providerOrderID string) (token string, ok bool, err error) {
	key := captureLockPrefix + providerOrderID
	ctx, end := database.TraceRedis(ctx, "SETNX", key)
	defer func() { end(err) }()

	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis acquire capture lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock held with token.
func (l *CaptureLock) Release(ctx context.Context, providerOrderID, token string) (err error) {
	key := captureLockPrefix + providerOrderID
	ctx, end := database.TraceRedis(ctx, "EVALSHA", key)
	defer func() { end(err) }()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("redis release capture lock: %w", err)
	}
	return nil
}
