package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/channel"
)

type scriptedSender struct {
	ch       channel.Channel
	reach    bool
	script   []error // outcome per attempt; past the end repeats the last
	attempts int
}

func (s *scriptedSender) Channel() channel.Channel            { return s.ch }
func (s *scriptedSender) CanReach(model.ReminderCandidate) bool { return s.reach }

func (s *scriptedSender) Send(context.Context, model.ReminderCandidate, channel.Message) error {
	i := s.attempts
	s.attempts++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]
}

var errProvider = errors.New("provider down")

func testCandidate() model.ReminderCandidate {
	return model.ReminderCandidate{
		AppointmentID: "appt-1",
		BusinessID:    "biz-1",
		CustomerID:    "cust-1",
		CustomerPhone: "+100",
		CustomerEmail: "ada@example.com",
		StartTime:     time.Now().Add(time.Hour),
	}
}

func newExecutor(t *testing.T, senders []channel.Sender, sleeps *[]time.Duration) *Executor {
	t.Helper()
	return NewExecutor(senders, slog.New(slog.DiscardHandler), Config{
		Sleep: func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	})
}

func TestDispatch_SucceededChannelNotRetried(t *testing.T) {
	sms := &scriptedSender{ch: channel.SMS, reach: true, script: []error{nil}}
	email := &scriptedSender{ch: channel.Email, reach: true, script: []error{errProvider, errProvider, nil}}

	var sleeps []time.Duration
	exec := newExecutor(t, []channel.Sender{sms, email}, &sleeps)

	results := exec.Dispatch(context.Background(), testCandidate(),
		[]channel.Channel{channel.SMS, channel.Email}, channel.Message{Body: "hi"})

	if !AnySuccess(results) {
		t.Fatal("expected overall success")
	}
	if sms.attempts != 1 {
		t.Fatalf("sms sent %d times; a succeeded channel must not be retried", sms.attempts)
	}
	if email.attempts != 3 {
		t.Fatalf("email attempts = %d, want 3", email.attempts)
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("channel %s should have eventually succeeded: %v", r.Channel, r.Err)
		}
	}
	// Backoff schedule between whole-set attempts: 2s then 4s.
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 4*time.Second {
		t.Fatalf("backoff schedule = %v, want [2s 4s]", sleeps)
	}
}

func TestDispatch_PartialSuccessIsSuccess(t *testing.T) {
	sms := &scriptedSender{ch: channel.SMS, reach: true, script: []error{errProvider}}
	email := &scriptedSender{ch: channel.Email, reach: true, script: []error{nil}}

	exec := newExecutor(t, []channel.Sender{sms, email}, nil)
	results := exec.Dispatch(context.Background(), testCandidate(),
		[]channel.Channel{channel.SMS, channel.Email}, channel.Message{})

	if !AnySuccess(results) {
		t.Fatal("one successful channel must count as success")
	}
}

func TestDispatch_ExhaustionAllFail(t *testing.T) {
	sms := &scriptedSender{ch: channel.SMS, reach: true, script: []error{errProvider}}
	push := &scriptedSender{ch: channel.Push, reach: true, script: []error{errProvider}}
	email := &scriptedSender{ch: channel.Email, reach: true, script: []error{errProvider}}

	var sleeps []time.Duration
	exec := newExecutor(t, []channel.Sender{sms, push, email}, &sleeps)
	results := exec.Dispatch(context.Background(), testCandidate(),
		[]channel.Channel{channel.SMS, channel.Push, channel.Email}, channel.Message{})

	if AnySuccess(results) {
		t.Fatal("expected total failure")
	}
	if sms.attempts != 3 || push.attempts != 3 || email.attempts != 3 {
		t.Fatalf("attempts = %d/%d/%d, want 3 each", sms.attempts, push.attempts, email.attempts)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %v", sleeps)
	}
	if s := FailureSummary(results); s == "" || s == "no deliverable channel" {
		t.Fatalf("failure summary should name the channel errors, got %q", s)
	}
}

func TestDispatch_UnreachableChannelSkippedWithoutRetries(t *testing.T) {
	sms := &scriptedSender{ch: channel.SMS, reach: false, script: []error{nil}}

	var sleeps []time.Duration
	exec := newExecutor(t, []channel.Sender{sms}, &sleeps)
	results := exec.Dispatch(context.Background(), testCandidate(),
		[]channel.Channel{channel.SMS}, channel.Message{})

	if sms.attempts != 0 {
		t.Fatalf("unreachable channel must not be sent, attempts = %d", sms.attempts)
	}
	if len(sleeps) != 0 {
		t.Fatalf("no backoff expected for unreachable-only set, got %v", sleeps)
	}
	if AnySuccess(results) {
		t.Fatal("unreachable channel is not a success")
	}
	if !errors.Is(results[0].Err, ErrNoTarget) {
		t.Fatalf("err = %v, want ErrNoTarget", results[0].Err)
	}
}

func TestDispatch_UnknownChannelIsNoTarget(t *testing.T) {
	exec := newExecutor(t, nil, nil)
	results := exec.Dispatch(context.Background(), testCandidate(),
		[]channel.Channel{channel.Push}, channel.Message{})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("unexpected results %v", results)
	}
}
