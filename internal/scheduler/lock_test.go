package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// An unreachable lock store must not stall the scheduler: the tick
// proceeds as if the lock were held.
func TestRedisLock_FailOpenWhenStoreUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })

	l := NewRedisLock(rdb, "test:lock", time.Second, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !l.TryAcquire(ctx) {
		t.Fatal("TryAcquire must fail open when the lock store is unreachable")
	}
	if l.held {
		t.Fatal("a fail-open acquire must not be treated as a held lease")
	}
	// Release after fail-open is a no-op and must not block or panic.
	l.Release(ctx)
}

func TestRedisLock_NilClientSingleInstance(t *testing.T) {
	l := NewRedisLock(nil, "", 0, slog.New(slog.DiscardHandler))
	if !l.TryAcquire(context.Background()) {
		t.Fatal("nil client means single-instance, acquire always succeeds")
	}
	l.Release(context.Background())
}
