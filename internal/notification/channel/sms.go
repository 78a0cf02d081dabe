package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
)

// SMSSender posts to an SMS gateway webhook. Sends are paced with a token
// bucket because gateway providers throttle hard and a burst of reminders
// in one tick would otherwise trip their limits.
type SMSSender struct {
	url     string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewSMSSender(url, token string, perSecond float64) *SMSSender {
	if perSecond <= 0 {
		perSecond = 10
	}
	return &SMSSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
	}
}

func (s *SMSSender) Channel() Channel { return SMS }

func (s *SMSSender) CanReach(c model.ReminderCandidate) bool {
	return s.url != "" && c.CustomerPhone != ""
}

func (s *SMSSender) Send(ctx context.Context, c model.ReminderCandidate, msg Message) error {
	if s.url == "" {
		return errors.New("sms gateway url not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	raw, err := json.Marshal(map[string]string{
		"to":   c.CustomerPhone,
		"body": msg.Body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("sms gateway returned non-2xx")
	}
	return nil
}
