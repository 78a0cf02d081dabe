// Package metrics keeps lightweight operational counters in Redis. These
// back the admin metrics endpoint; they are observability aids, not a
// system of record, so every write is fire-and-forget.
package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/randevubu/randevubu.server-sub006/internal/scheduler"
)

const reminderKeyPrefix = "metrics:reminders:"

// Recorder accumulates per-day reminder counters in a Redis hash.
type Recorder struct {
	rdb       *redis.Client
	logger    *slog.Logger
	retention time.Duration
}

func NewRecorder(rdb *redis.Client, logger *slog.Logger, retention time.Duration) *Recorder {
	if retention <= 0 {
		retention = 21 * 24 * time.Hour
	}
	return &Recorder{rdb: rdb, logger: logger, retention: retention}
}

var _ scheduler.Metrics = (*Recorder)(nil)

func (r *Recorder) RecordTick(ctx context.Context, day string, stats scheduler.TickStats) {
	if r.rdb == nil {
		return
	}
	key := reminderKeyPrefix + day
	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, "processed", int64(stats.Processed))
	pipe.HIncrBy(ctx, key, "sent", int64(stats.Sent))
	pipe.HIncrBy(ctx, key, "failed", int64(stats.Failed))
	pipe.HIncrBy(ctx, key, "suppressed", int64(stats.Suppressed))
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("recording reminder metrics", "day", day, "err", err)
	}
}

// ReminderDay reads one day's counters. Missing day returns zeroes.
func (r *Recorder) ReminderDay(ctx context.Context, day string) (map[string]int64, error) {
	if r.rdb == nil {
		return map[string]int64{}, nil
	}
	raw, err := r.rdb.HGetAll(ctx, reminderKeyPrefix+day).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
