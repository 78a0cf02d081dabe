package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Usage counts billable actions per business per month. The booking path
// calls it after commit; an unreachable Redis only costs a counter, never
// a booking.
type Usage struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewUsage(rdb *redis.Client, logger *slog.Logger) *Usage {
	return &Usage{rdb: rdb, logger: logger}
}

func (u *Usage) Record(ctx context.Context, businessID, kind string) {
	if u.rdb == nil {
		return
	}
	month := time.Now().UTC().Format("2006-01")
	key := "usage:" + kind + ":" + businessID + ":" + month
	pipe := u.rdb.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 90*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		u.logger.Warn("recording usage", "business_id", businessID, "kind", kind, "err", err)
	}
}
