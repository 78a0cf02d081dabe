package channel

import (
	"context"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
)

// NoopSender accepts everything and delivers nothing. Used in dev when a
// provider is not configured so the dispatch path stays exercised.
type NoopSender struct {
	channel Channel
}

func NewNoopSender(ch Channel) *NoopSender {
	return &NoopSender{channel: ch}
}

func (s *NoopSender) Channel() Channel { return s.channel }

func (s *NoopSender) CanReach(model.ReminderCandidate) bool { return true }

func (s *NoopSender) Send(context.Context, model.ReminderCandidate, Message) error { return nil }
