package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/clock"
	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/channel"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/dispatch"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/policy"
	"github.com/randevubu/randevubu.server-sub006/internal/settings"
	"github.com/randevubu/randevubu.server-sub006/internal/storage"
)

// Marker flips the reminder-sent flag. The conditional update is the
// idempotence anchor: whoever lands the flip first wins, everyone else
// sees marked=false and stops.
type Marker interface {
	MarkReminderSent(ctx context.Context, appointmentID string, at time.Time) (bool, error)
}

// DeadLetterSink records reminders that exhausted their retry budget.
type DeadLetterSink interface {
	Insert(ctx context.Context, dl storage.DeadLetter) error
}

// EventSink mirrors the booking side's sink; both are satisfied by the
// outbox repository.
type EventSink interface {
	Enqueue(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error
}

// TickStats is one tick's counters for the metrics layer.
type TickStats struct {
	Processed  int
	Sent       int
	Failed     int
	Suppressed int
}

type Metrics interface {
	RecordTick(ctx context.Context, day string, stats TickStats)
}

type RunnerConfig struct {
	Interval     time.Duration // wall-clock spacing between ticks
	TickDeadline time.Duration // hard budget per tick, must stay below the lock TTL
}

// Runner drives the reminder loop: take the lock, scan, resolve policy,
// dispatch, mark. One runner per process; the lock serializes across
// processes.
type Runner struct {
	lock        Lock
	scanner     *Scanner
	settings    settings.Source
	exec        *dispatch.Executor
	marks       Marker
	deadLetters DeadLetterSink
	events      EventSink
	metrics     Metrics
	clock       clock.Clock
	logger      *slog.Logger

	interval     time.Duration
	tickDeadline time.Duration
}

func NewRunner(lock Lock, scanner *Scanner, src settings.Source, exec *dispatch.Executor,
	marks Marker, deadLetters DeadLetterSink, events EventSink, metrics Metrics,
	clk clock.Clock, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TickDeadline <= 0 {
		cfg.TickDeadline = 50 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Runner{
		lock:         lock,
		scanner:      scanner,
		settings:     src,
		exec:         exec,
		marks:        marks,
		deadLetters:  deadLetters,
		events:       events,
		metrics:      metrics,
		clock:        clk,
		logger:       logger,
		interval:     cfg.Interval,
		tickDeadline: cfg.TickDeadline,
	}
}

// Run blocks until ctx is canceled, ticking on the configured interval.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reminder scheduler started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. Also the entry point for the admin
// run-now trigger; it goes through the same lock so a manual trigger
// cannot race a scheduled tick.
func (r *Runner) Tick(ctx context.Context) TickStats {
	tickCtx, cancel := context.WithTimeout(ctx, r.tickDeadline)
	defer cancel()

	if !r.lock.TryAcquire(tickCtx) {
		r.logger.Debug("tick skipped, another instance holds the lock")
		return TickStats{}
	}
	defer func() {
		relCtx, relCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer relCancel()
		r.lock.Release(relCtx)
	}()

	now := r.clock.Now()
	cands, err := r.scanner.FindCandidates(tickCtx, now)
	if err != nil {
		r.logger.Error("reminder scan failed", "err", err)
		return TickStats{}
	}

	var stats TickStats
	for _, cand := range cands {
		if tickCtx.Err() != nil {
			r.logger.Warn("tick deadline reached, deferring remaining candidates",
				"remaining", len(cands)-stats.Processed)
			break
		}
		stats.Processed++
		r.processCandidate(tickCtx, cand, now, &stats)
	}

	if r.metrics != nil && stats.Processed > 0 {
		r.metrics.RecordTick(tickCtx, clock.DayKey(now, time.UTC), stats)
	}
	if stats.Sent > 0 || stats.Failed > 0 || stats.Suppressed > 0 {
		r.logger.Info("reminder tick done",
			"processed", stats.Processed,
			"sent", stats.Sent,
			"failed", stats.Failed,
			"suppressed", stats.Suppressed,
		)
	}
	return stats
}

// processCandidate isolates one candidate: any failure is logged and
// counted, never propagated, so one bad row cannot starve the rest of the
// batch.
func (r *Runner) processCandidate(ctx context.Context, cand model.ReminderCandidate, now time.Time, stats *TickStats) {
	biz, err := r.settings.BusinessSettings(ctx, cand.BusinessID)
	if err != nil {
		r.logger.Error("loading business settings", "business_id", cand.BusinessID, "err", err)
		stats.Failed++
		return
	}
	prefs, err := r.settings.UserPreferences(ctx, cand.CustomerID)
	if err != nil {
		r.logger.Error("loading user preferences", "customer_id", cand.CustomerID, "err", err)
		stats.Failed++
		return
	}

	d := policy.Resolve(cand, biz, prefs, now)
	if d.Suppressed {
		stats.Suppressed++
		r.logger.Debug("reminder suppressed",
			"appointment_id", cand.AppointmentID, "reason", d.Reason)
		return
	}
	if !d.Due {
		return
	}

	loc := clock.LoadLocation(biz.Timezone)
	results := r.exec.Dispatch(ctx, cand, d.Channels, policy.Message(cand, loc))

	if !dispatch.AnySuccess(results) {
		stats.Failed++
		r.deadLetter(ctx, cand, results)
		return
	}

	marked, err := r.marks.MarkReminderSent(ctx, cand.AppointmentID, now)
	if err != nil {
		// Delivered but unmarked: the next tick may send again. Accepted
		// under at-least-once delivery.
		r.logger.Error("marking reminder sent", "appointment_id", cand.AppointmentID, "err", err)
		stats.Failed++
		return
	}
	if !marked {
		r.logger.Info("reminder already marked by another instance",
			"appointment_id", cand.AppointmentID)
		return
	}
	stats.Sent++
	r.emit(ctx, cand, "reminder.sent.v1", map[string]any{
		"appointment_id": cand.AppointmentID,
		"business_id":    cand.BusinessID,
		"customer_id":    cand.CustomerID,
		"offset_minutes": d.DueOffsetMinutes,
		"sent_at":        now.UTC().Format(time.RFC3339),
	})
}

func (r *Runner) deadLetter(ctx context.Context, cand model.ReminderCandidate, results []channel.Result) {
	summary := dispatch.FailureSummary(results)
	r.logger.Error("reminder exhausted retries",
		"appointment_id", cand.AppointmentID, "err", summary)

	if err := r.deadLetters.Insert(ctx, storage.DeadLetter{
		AppointmentID: cand.AppointmentID,
		CustomerID:    cand.CustomerID,
		BusinessID:    cand.BusinessID,
		Error:         summary,
	}); err != nil {
		r.logger.Error("writing dead letter", "appointment_id", cand.AppointmentID, "err", err)
	}
	r.emit(ctx, cand, "reminder.deadletter.v1", map[string]any{
		"appointment_id": cand.AppointmentID,
		"business_id":    cand.BusinessID,
		"customer_id":    cand.CustomerID,
		"error":          summary,
	})
}

func (r *Runner) emit(ctx context.Context, cand model.ReminderCandidate, eventType string, payload map[string]any) {
	if r.events == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("encoding event payload", "event_type", eventType, "err", err)
		return
	}
	if err := r.events.Enqueue(ctx, "reminder", cand.AppointmentID, eventType, body); err != nil {
		r.logger.Warn("enqueueing event", "event_type", eventType, "err", err)
	}
}
