package policy

import (
	"testing"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/notification/channel"
	"github.com/randevubu/randevubu.server-sub006/internal/settings"
)

func baseSettings() settings.BusinessSettings {
	s := settings.DefaultBusinessSettings("biz-1")
	s.ReminderOffsetsMinutes = []int{60, 1440}
	return s
}

func basePrefs() settings.UserPreferences {
	return settings.DefaultUserPreferences("cust-1")
}

func candidateStartingIn(d time.Duration, now time.Time) model.ReminderCandidate {
	return model.ReminderCandidate{
		AppointmentID: "appt-1",
		BusinessID:    "biz-1",
		CustomerID:    "cust-1",
		StartTime:     now.Add(d),
	}
}

var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestResolve_OffsetTolerance(t *testing.T) {
	// 61.5 minutes until start, offset 60, tolerance 2: due.
	c := candidateStartingIn(61*time.Minute+30*time.Second, noon)
	d := Resolve(c, baseSettings(), basePrefs(), noon)
	if !d.Due || d.Suppressed {
		t.Fatalf("expected due, got %+v", d)
	}
	if d.DueOffsetMinutes != 60 {
		t.Fatalf("due offset = %d, want 60", d.DueOffsetMinutes)
	}

	// Same instant against only the 1440 offset: not due.
	s := baseSettings()
	s.ReminderOffsetsMinutes = []int{1440}
	d = Resolve(c, s, basePrefs(), noon)
	if d.Due || d.Suppressed {
		t.Fatalf("expected not due, got %+v", d)
	}

	// The 24h reminder is due at T-24h.
	c = candidateStartingIn(1439*time.Minute, noon)
	d = Resolve(c, s, basePrefs(), noon)
	if !d.Due || d.DueOffsetMinutes != 1440 {
		t.Fatalf("expected 1440 offset due, got %+v", d)
	}
}

func TestResolve_BusinessDisableShortCircuits(t *testing.T) {
	s := baseSettings()
	s.EnableAppointmentReminders = false
	d := Resolve(candidateStartingIn(time.Hour, noon), s, basePrefs(), noon)
	if !d.Suppressed || d.Reason != ReasonBusinessDisabled {
		t.Fatalf("expected business_disabled suppression, got %+v", d)
	}
}

func TestResolve_UserCanDisableButNotReEnable(t *testing.T) {
	c := candidateStartingIn(time.Hour, noon)

	p := basePrefs()
	p.EnableReminders = false
	d := Resolve(c, baseSettings(), p, noon)
	if !d.Suppressed || d.Reason != ReasonUserDisabled {
		t.Fatalf("expected user_disabled suppression, got %+v", d)
	}

	// The business disabled SMS; the user preferring SMS cannot bring it
	// back. Only the remaining channels survive.
	s := baseSettings()
	s.SMSEnabled = false
	p = basePrefs()
	p.PreferredChannels = []string{"sms", "email"}
	d = Resolve(c, s, p, noon)
	if d.Suppressed || !d.Due {
		t.Fatalf("expected due, got %+v", d)
	}
	if len(d.Channels) != 1 || d.Channels[0] != channel.Email {
		t.Fatalf("channels = %v, want [email]", d.Channels)
	}
}

func TestResolve_ChannelIntersection(t *testing.T) {
	c := candidateStartingIn(time.Hour, noon)

	s := baseSettings()
	s.ReminderChannels = []string{"sms", "push"}
	p := basePrefs()
	p.PreferredChannels = []string{"push", "email"}

	d := Resolve(c, s, p, noon)
	if len(d.Channels) != 1 || d.Channels[0] != channel.Push {
		t.Fatalf("channels = %v, want [push]", d.Channels)
	}

	// Everything filtered out: suppressed with no enabled channel.
	s.SMSEnabled = false
	s.PushEnabled = false
	d = Resolve(c, s, p, noon)
	if !d.Suppressed || d.Reason != ReasonNoEnabledChannel {
		t.Fatalf("expected no_enabled_channel, got %+v", d)
	}
}

func TestQuietHours_OvernightWindow(t *testing.T) {
	cases := []struct {
		clock string
		want  bool
	}{
		{"23:30", true},  // inside the wrap
		{"07:00", false}, // after the window
		{"22:00", true},  // inclusive start boundary
		{"06:00", true},  // inclusive end boundary
		{"12:00", false},
	}
	for _, tc := range cases {
		cur, ok := parseClockMinutes(tc.clock)
		if !ok {
			t.Fatalf("bad test clock %q", tc.clock)
		}
		if got := inQuietWindow(cur, "22:00", "06:00"); got != tc.want {
			t.Fatalf("inQuietWindow(%s, 22:00-06:00) = %v, want %v", tc.clock, got, tc.want)
		}
	}
}

func TestQuietHours_SameDayWindow(t *testing.T) {
	cur, _ := parseClockMinutes("13:00")
	if !inQuietWindow(cur, "12:00", "14:00") {
		t.Fatal("13:00 should be inside 12:00-14:00")
	}
	cur, _ = parseClockMinutes("15:00")
	if inQuietWindow(cur, "12:00", "14:00") {
		t.Fatal("15:00 should be outside 12:00-14:00")
	}
}

func TestResolve_QuietHoursSuppress(t *testing.T) {
	// 23:00 local with a 22:00-06:00 business window.
	night := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	c := candidateStartingIn(time.Hour, night)

	s := baseSettings()
	s.QuietHoursStart = "22:00"
	s.QuietHoursEnd = "06:00"
	d := Resolve(c, s, basePrefs(), night)
	if !d.Suppressed || d.Reason != ReasonQuietHours {
		t.Fatalf("expected quiet_hours suppression, got %+v", d)
	}

	// User quiet hours apply when the business has none.
	s = baseSettings()
	p := basePrefs()
	p.QuietHoursStart = "22:00"
	p.QuietHoursEnd = "06:00"
	d = Resolve(c, s, p, night)
	if !d.Suppressed || d.Reason != ReasonQuietHours {
		t.Fatalf("expected user quiet_hours suppression, got %+v", d)
	}
}

func TestResolve_UserOffsetsFillBusinessGap(t *testing.T) {
	s := baseSettings()
	s.ReminderOffsetsMinutes = nil
	p := basePrefs()
	p.ReminderOffsetsMinutes = []int{30}

	c := candidateStartingIn(30*time.Minute, noon)
	d := Resolve(c, s, p, noon)
	if !d.Due || d.DueOffsetMinutes != 30 {
		t.Fatalf("expected user offset 30 to apply, got %+v", d)
	}
}
