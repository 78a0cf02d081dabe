package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
)

// PushSender delivers Web Push notifications to the customer's stored
// subscription using VAPID keys.
type PushSender struct {
	vapidPublic  string
	vapidPrivate string
	subscriber   string
	ttl          int
}

func NewPushSender(vapidPublic, vapidPrivate, subscriber string) *PushSender {
	if subscriber == "" {
		subscriber = "mailto:ops@randevubu.local"
	}
	return &PushSender{
		vapidPublic:  vapidPublic,
		vapidPrivate: vapidPrivate,
		subscriber:   subscriber,
		ttl:          3600,
	}
}

func (s *PushSender) Channel() Channel { return Push }

func (s *PushSender) CanReach(c model.ReminderCandidate) bool {
	return s.vapidPrivate != "" && c.PushEndpoint != "" && c.PushP256DH != "" && c.PushAuth != ""
}

func (s *PushSender) Send(ctx context.Context, c model.ReminderCandidate, msg Message) error {
	if s.vapidPrivate == "" {
		return errors.New("vapid keys not configured")
	}
	payload, err := json.Marshal(map[string]string{
		"title": msg.Subject,
		"body":  msg.Body,
	})
	if err != nil {
		return err
	}

	sub := &webpush.Subscription{
		Endpoint: c.PushEndpoint,
		Keys: webpush.Keys{
			P256dh: c.PushP256DH,
			Auth:   c.PushAuth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.vapidPublic,
		VAPIDPrivateKey: s.vapidPrivate,
		TTL:             s.ttl,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 404/410 mean the subscription is gone; the send still failed.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}
