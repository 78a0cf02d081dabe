package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is the tick mutual-exclusion primitive. Implementations must be
// safe to call from one goroutine per process; cross-process exclusion is
// the whole point.
type Lock interface {
	TryAcquire(ctx context.Context) bool
	Release(ctx context.Context)
}

// releaseScript deletes the key only when it still holds our token, so an
// instance that lost its lease to TTL expiry cannot release the next
// holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is SET NX PX with an owner token. Fail-open: when Redis is
// unreachable the caller proceeds as if it held the lock — availability
// over strict exclusivity. The reminder-sent marker keeps re-dispatch
// idempotent at the data layer, so only sends in flight during the outage
// can double-deliver.
type RedisLock struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger

	token string
	held  bool
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *RedisLock {
	if key == "" {
		key = "scheduler:reminder-tick"
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl, logger: logger}
}

var _ Lock = (*RedisLock)(nil)

func (l *RedisLock) TryAcquire(ctx context.Context) bool {
	l.token = uuid.NewString()
	l.held = false

	if l.rdb == nil {
		// No lock store configured (single-instance deployment).
		return true
	}

	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("lock store unreachable, proceeding fail-open", "key", l.key, "err", err)
		return true
	}
	l.held = ok
	return ok
}

func (l *RedisLock) Release(ctx context.Context) {
	if !l.held || l.rdb == nil {
		return
	}
	l.held = false
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		// The TTL is the backstop; a failed release just delays the next
		// holder by at most the remaining TTL.
		l.logger.Warn("lock release failed", "key", l.key, "err", err)
	}
}
