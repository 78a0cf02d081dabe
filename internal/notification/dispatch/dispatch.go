// Package dispatch drives the per-appointment delivery attempt loop.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/channel"
)

// ErrNoTarget marks a channel the candidate cannot be reached on (missing
// phone number, email address or push subscription).
var ErrNoTarget = errors.New("no delivery target for channel")

type Config struct {
	MaxAttempts int
	SendTimeout time.Duration
	// Sleep is injectable for tests; nil means context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor sends one candidate's message through the resolved channels
// with a bounded retry loop. Attempts apply to the whole channel set:
// after a failed attempt the remaining (not yet successful) channels run
// again, with exponential backoff between attempts. Channels that already
// succeeded are never re-sent.
type Executor struct {
	senders     map[channel.Channel]channel.Sender
	logger      *slog.Logger
	maxAttempts int
	sendTimeout time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewExecutor(senders []channel.Sender, logger *slog.Logger, cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	m := make(map[channel.Channel]channel.Sender, len(senders))
	for _, s := range senders {
		m[s.Channel()] = s
	}
	return &Executor{
		senders:     m,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		sendTimeout: cfg.SendTimeout,
		sleep:       cfg.Sleep,
	}
}

// Dispatch runs the attempt loop and returns the final per-channel
// results. It never panics or returns an error of its own: every failure
// is contained in the results so one bad candidate cannot take down a
// scheduler tick.
func (e *Executor) Dispatch(ctx context.Context, cand model.ReminderCandidate, channels []channel.Channel, msg channel.Message) []channel.Result {
	results := make(map[channel.Channel]channel.Result, len(channels))
	var pending []channel.Channel
	for _, ch := range channels {
		sender, ok := e.senders[ch]
		if !ok || !sender.CanReach(cand) {
			results[ch] = channel.Result{Channel: ch, Success: false, Err: ErrNoTarget}
			continue
		}
		pending = append(pending, ch)
	}

	for attempt := 1; attempt <= e.maxAttempts && len(pending) > 0; attempt++ {
		if attempt > 1 {
			// 2^n seconds after the n-th failed attempt: 2s, then 4s.
			if err := e.sleep(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
				break
			}
		}

		var stillFailing []channel.Channel
		for _, ch := range pending {
			sender := e.senders[ch]
			sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
			err := sender.Send(sendCtx, cand, msg)
			cancel()
			if err != nil {
				results[ch] = channel.Result{Channel: ch, Success: false, Err: err}
				stillFailing = append(stillFailing, ch)
				e.logger.Warn("channel send failed",
					"appointment_id", cand.AppointmentID,
					"channel", string(ch),
					"attempt", attempt,
					"err", err,
				)
				continue
			}
			results[ch] = channel.Result{Channel: ch, Success: true}
		}
		pending = stillFailing
	}

	out := make([]channel.Result, 0, len(channels))
	for _, ch := range channels {
		out = append(out, results[ch])
	}
	return out
}

// AnySuccess reports whether at least one channel delivered. Partial
// success counts as success for the reminder-sent marker.
func AnySuccess(results []channel.Result) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// FailureSummary joins the errors of failed channels for dead-letter rows.
func FailureSummary(results []channel.Result) string {
	s := ""
	for _, r := range results {
		if r.Success || r.Err == nil {
			continue
		}
		if s != "" {
			s += "; "
		}
		s += string(r.Channel) + ": " + r.Err.Error()
	}
	if s == "" {
		s = "no deliverable channel"
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
