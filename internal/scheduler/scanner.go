package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/policy"
	"github.com/randevubu/randevubu.server-sub006/internal/settings"
)

// candidateSource is the slice of the appointment repository the scanner
// needs.
type candidateSource interface {
	FindReminderCandidates(ctx context.Context, from, to time.Time, limit int) ([]model.ReminderCandidate, error)
}

// Window is the scan horizon relative to now. A candidate whose start time
// falls in [now+From, now+To] is fetched and handed to the policy layer.
type Window struct {
	From time.Duration
	To   time.Duration
}

// DeriveWindow widens the hull of the configured offsets by the due
// tolerance, so every offset any business configured is reachable and a
// candidate entering tolerance just before the boundary is not missed.
func DeriveWindow(offsets []int) Window {
	if len(offsets) == 0 {
		offsets = settings.DefaultReminderOffsets
	}
	min, max := offsets[0], offsets[0]
	for _, off := range offsets[1:] {
		if off < min {
			min = off
		}
		if off > max {
			max = off
		}
	}
	from := float64(min) - policy.DueToleranceMinutes
	if from < 0 {
		from = 0
	}
	to := float64(max) + policy.DueToleranceMinutes
	return Window{
		From: time.Duration(from * float64(time.Minute)),
		To:   time.Duration(to * float64(time.Minute)),
	}
}

// Scanner fetches reminder candidates for one tick. The window is derived
// per tick from the offsets actually configured in the database, so a
// business that sets up a 3-day reminder is covered without a deploy.
type Scanner struct {
	repo     candidateSource
	settings settings.Source
	logger   *slog.Logger
	limit    int
}

func NewScanner(repo candidateSource, src settings.Source, logger *slog.Logger, limit int) *Scanner {
	if limit <= 0 {
		limit = 500
	}
	return &Scanner{repo: repo, settings: src, logger: logger, limit: limit}
}

func (s *Scanner) FindCandidates(ctx context.Context, now time.Time) ([]model.ReminderCandidate, error) {
	offsets, err := s.settings.DistinctReminderOffsets(ctx)
	if err != nil {
		// Defaults keep the common 1h/24h reminders flowing while the
		// settings read is degraded.
		s.logger.Warn("reading configured offsets failed, using defaults", "err", err)
		offsets = nil
	}
	// Businesses without a settings row (and rows with empty offsets) run
	// with the defaults, so the window must always cover them on top of
	// whatever is configured explicitly. Copy before appending: the source
	// may hand out a cached slice.
	union := make([]int, 0, len(offsets)+len(settings.DefaultReminderOffsets))
	union = append(union, offsets...)
	union = append(union, settings.DefaultReminderOffsets...)
	w := DeriveWindow(union)

	cands, err := s.repo.FindReminderCandidates(ctx, now.Add(w.From), now.Add(w.To), s.limit)
	if err != nil {
		return nil, fmt.Errorf("scanning reminder candidates: %w", err)
	}
	return cands, nil
}
