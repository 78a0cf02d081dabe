// Package policy decides whether and how a reminder goes out. Business
// settings override user preferences: the user layer can only narrow what
// the business allows, never re-enable what the business disabled.
package policy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/clock"
	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/channel"
	"github.com/randevubu/randevubu.server-sub006/internal/settings"
)

// DueToleranceMinutes absorbs tick granularity: ticks are discrete
// (typically 60s), so an exact-minute offset match would be unreliable.
const DueToleranceMinutes = 2.0

const (
	ReasonBusinessDisabled = "business_disabled"
	ReasonUserDisabled     = "user_disabled"
	ReasonQuietHours       = "quiet_hours"
	ReasonNoEnabledChannel = "no_enabled_channel"
)

type Decision struct {
	// Due is true when some configured offset matches the time until the
	// appointment within tolerance. A not-due candidate is neither sent
	// nor suppressed; the next tick re-evaluates it.
	Due              bool
	DueOffsetMinutes int
	Suppressed       bool
	Reason           string
	Channels         []channel.Channel
}

// Resolve evaluates the reminder policy for one candidate at one instant.
// Pure function of its inputs.
func Resolve(c model.ReminderCandidate, biz settings.BusinessSettings, prefs settings.UserPreferences, now time.Time) Decision {
	if !biz.EnableAppointmentReminders {
		return Decision{Suppressed: true, Reason: ReasonBusinessDisabled}
	}
	if !prefs.EnableReminders {
		return Decision{Suppressed: true, Reason: ReasonUserDisabled}
	}

	offsets := biz.ReminderOffsetsMinutes
	if len(offsets) == 0 {
		offsets = prefs.ReminderOffsetsMinutes
	}
	if len(offsets) == 0 {
		offsets = settings.DefaultReminderOffsets
	}

	minutesUntil := c.StartTime.Sub(now).Minutes()
	dueOffset, due := matchOffset(minutesUntil, offsets)
	if !due {
		return Decision{}
	}

	loc := clock.LoadLocation(biz.Timezone)
	cur := clock.MinuteOfDay(now, loc)
	if inQuietWindow(cur, biz.QuietHoursStart, biz.QuietHoursEnd) ||
		inQuietWindow(cur, prefs.QuietHoursStart, prefs.QuietHoursEnd) {
		return Decision{Due: true, DueOffsetMinutes: dueOffset, Suppressed: true, Reason: ReasonQuietHours}
	}

	channels := resolveChannels(biz, prefs)
	if len(channels) == 0 {
		return Decision{Due: true, DueOffsetMinutes: dueOffset, Suppressed: true, Reason: ReasonNoEnabledChannel}
	}

	return Decision{Due: true, DueOffsetMinutes: dueOffset, Channels: channels}
}

func matchOffset(minutesUntil float64, offsets []int) (int, bool) {
	for _, off := range offsets {
		if math.Abs(minutesUntil-float64(off)) <= DueToleranceMinutes {
			return off, true
		}
	}
	return 0, false
}

// inQuietWindow checks a local HH:MM window against the current minute of
// day. start > end means the window wraps midnight. Boundaries inclusive.
func inQuietWindow(cur int, startStr, endStr string) bool {
	start, okS := parseClockMinutes(startStr)
	end, okE := parseClockMinutes(endStr)
	if !okS || !okE {
		return false
	}
	if start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

func parseClockMinutes(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func resolveChannels(biz settings.BusinessSettings, prefs settings.UserPreferences) []channel.Channel {
	enabled := map[channel.Channel]bool{
		channel.SMS:   biz.SMSEnabled,
		channel.Push:  biz.PushEnabled,
		channel.Email: biz.EmailEnabled,
	}

	allow := func(list []string, ch channel.Channel) bool {
		if len(list) == 0 {
			return true
		}
		for _, s := range list {
			if strings.EqualFold(strings.TrimSpace(s), string(ch)) {
				return true
			}
		}
		return false
	}

	var out []channel.Channel
	for _, ch := range []channel.Channel{channel.SMS, channel.Push, channel.Email} {
		if !enabled[ch] {
			continue
		}
		if !allow(biz.ReminderChannels, ch) {
			continue
		}
		if !allow(prefs.PreferredChannels, ch) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// Message renders the reminder text for a candidate. Kept here so both the
// scheduler and the booking-confirmation consumer produce consistent copy.
func Message(c model.ReminderCandidate, loc *time.Location) channel.Message {
	when := c.StartTime.In(loc).Format("Mon 2 Jan 15:04")
	service := c.ServiceName
	if service == "" {
		service = "your appointment"
	}
	return channel.Message{
		Subject: fmt.Sprintf("Reminder: %s at %s", service, c.BusinessName),
		Body:    fmt.Sprintf("Hi %s, this is a reminder of %s at %s on %s.", c.CustomerName, service, c.BusinessName, when),
	}
}
