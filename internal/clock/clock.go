package clock

import (
	"time"
)

// Clock supplies the current time so the booking and scheduler paths can be
// tested against a fixed instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. Test helper.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// LoadLocation resolves an IANA timezone name, falling back to UTC for
// empty or unknown names. Business rows carry the name as free text, so a
// bad value must not break bookings for that business.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayKey returns the business-local day bucket (YYYY-MM-DD) for t.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// DayBounds returns the [start, end) UTC instants of the business-local day
// containing t. Daily caps count appointments inside these bounds.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// MinuteOfDay returns minutes since business-local midnight for t.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
