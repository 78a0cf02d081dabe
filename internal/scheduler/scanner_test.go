package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/policy"
	"github.com/randevubu/randevubu.server-sub006/internal/settings"
)

// offsetsOnlySource reports a fixed set of explicitly configured offsets.
type offsetsOnlySource struct {
	offsets []int
}

func (s offsetsOnlySource) BusinessSettings(_ context.Context, id string) (settings.BusinessSettings, error) {
	return settings.DefaultBusinessSettings(id), nil
}

func (s offsetsOnlySource) UserPreferences(_ context.Context, id string) (settings.UserPreferences, error) {
	return settings.DefaultUserPreferences(id), nil
}

func (s offsetsOnlySource) DistinctReminderOffsets(context.Context) ([]int, error) {
	return s.offsets, nil
}

// windowFilteringSource returns only the rows whose start falls inside the
// requested window, the way the real query does.
type windowFilteringSource struct {
	rows []model.ReminderCandidate
}

func (f *windowFilteringSource) FindReminderCandidates(_ context.Context, from, to time.Time, _ int) ([]model.ReminderCandidate, error) {
	var out []model.ReminderCandidate
	for _, c := range f.rows {
		if !c.StartTime.Before(from) && !c.StartTime.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// A business without a settings row runs with the default 60/1440 offsets.
// The scan window must cover those defaults even when every explicit
// settings row configures something narrower, or default-offset reminders
// are silently never sent.
func TestFindCandidates_WindowCoversDefaultOffsets(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cand := dueCandidate("appt-1")
	cand.StartTime = now.Add(60 * time.Minute)

	src := offsetsOnlySource{offsets: []int{30}}
	repo := &windowFilteringSource{rows: []model.ReminderCandidate{cand}}
	s := NewScanner(repo, src, slog.New(slog.DiscardHandler), 0)

	// Policy agrees the candidate is due at the default 60-minute offset.
	biz, _ := src.BusinessSettings(context.Background(), cand.BusinessID)
	prefs, _ := src.UserPreferences(context.Background(), cand.CustomerID)
	if d := policy.Resolve(cand, biz, prefs, now); !d.Due {
		t.Fatalf("candidate should be due at the default offset, got %+v", d)
	}

	got, err := s.FindCandidates(context.Background(), now)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 1 || got[0].AppointmentID != "appt-1" {
		t.Fatalf("scan window must include default-offset candidates, got %v", got)
	}
}

// Explicit offsets wider than the defaults still stretch the window.
func TestFindCandidates_WindowCoversExplicitOffsets(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cand := dueCandidate("appt-1")
	cand.StartTime = now.Add(3 * 24 * time.Hour) // a 3-day reminder

	src := offsetsOnlySource{offsets: []int{3 * 24 * 60}}
	repo := &windowFilteringSource{rows: []model.ReminderCandidate{cand}}
	s := NewScanner(repo, src, slog.New(slog.DiscardHandler), 0)

	got, err := s.FindCandidates(context.Background(), now)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("scan window must include explicitly configured offsets, got %v", got)
	}
}
