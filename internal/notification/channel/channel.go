// Package channel holds the delivery adapters for the notification
// channels. Each sender wraps one provider behind the same narrow
// interface so the dispatch executor treats SMS, email and push uniformly.
package channel

import (
	"context"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
)

type Channel string

const (
	SMS   Channel = "sms"
	Push  Channel = "push"
	Email Channel = "email"
)

// Message is the rendered notification content for one candidate.
type Message struct {
	Subject string
	Body    string
}

// Result is the per-channel outcome of one delivery attempt.
type Result struct {
	Channel Channel
	Success bool
	Err     error
}

// Sender delivers one message to one recipient over one channel. Sends
// carry a per-call timeout through ctx so a slow provider cannot stall the
// whole scheduler tick.
type Sender interface {
	Channel() Channel
	// CanReach reports whether the candidate has a usable target for
	// this channel (phone, email address, push subscription).
	CanReach(c model.ReminderCandidate) bool
	Send(ctx context.Context, c model.ReminderCandidate, msg Message) error
}
