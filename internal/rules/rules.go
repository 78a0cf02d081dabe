// Package rules evaluates per-business reservation policy. Every check is a
// pure function of its inputs, so the booking coordinator can run the same
// evaluation twice: once outside the transaction for a cheap early rejection
// and once inside it against the transaction's own read view.
package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
)

const (
	DefaultMaxAdvanceBookingDays = 30
	DefaultMinNotificationHours  = 2
	DefaultMaxDailyAppointments  = 50
)

// Ruleset is the per-business reservation policy with defaults applied.
type Ruleset struct {
	MaxAdvanceBookingDays int
	MinNotificationHours  float64
	MaxDailyAppointments  int

	// ServiceMinNotificationHours overrides MinNotificationHours when > 0.
	ServiceMinNotificationHours float64
}

// WithDefaults fills zero-valued fields with the business defaults.
func (rs Ruleset) WithDefaults() Ruleset {
	if rs.MaxAdvanceBookingDays <= 0 {
		rs.MaxAdvanceBookingDays = DefaultMaxAdvanceBookingDays
	}
	if rs.MinNotificationHours <= 0 {
		rs.MinNotificationHours = DefaultMinNotificationHours
	}
	if rs.MaxDailyAppointments <= 0 {
		rs.MaxDailyAppointments = DefaultMaxDailyAppointments
	}
	return rs
}

const (
	CodePastStart       = "past_start"
	CodeAdvanceWindow   = "advance_window"
	CodeMinNotice       = "min_notice"
	CodeDailyCap        = "daily_cap"
	CodeCustomerOverlap = "customer_overlap"
)

// Violation describes one failed policy check with enough detail for the
// caller to render a precise user-facing message.
type Violation struct {
	Code    string
	Message string
	Limit   float64
	Actual  float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// Evaluate runs the ordered policy checks for a booking of the given start
// and duration. existingForDay is the business's appointment list for the
// target day (any status; canceled rows are ignored here). The checks
// short-circuit per category but a single call reports at most one
// violation per category, in check order.
func Evaluate(rs Ruleset, start time.Time, duration time.Duration, now time.Time, existingForDay []model.Appointment, customerID string) []Violation {
	rs = rs.WithDefaults()
	var out []Violation

	if !start.After(now) {
		out = append(out, Violation{
			Code:    CodePastStart,
			Message: "appointment start must be in the future",
		})
		return out
	}

	daysAhead := math.Ceil(start.Sub(now).Hours() / 24)
	if daysAhead > float64(rs.MaxAdvanceBookingDays) {
		out = append(out, Violation{
			Code:    CodeAdvanceWindow,
			Message: fmt.Sprintf("appointments can be booked at most %d days in advance", rs.MaxAdvanceBookingDays),
			Limit:   float64(rs.MaxAdvanceBookingDays),
			Actual:  daysAhead,
		})
		return out
	}

	minNotice := rs.MinNotificationHours
	if rs.ServiceMinNotificationHours > 0 {
		minNotice = rs.ServiceMinNotificationHours
	}
	hoursAhead := start.Sub(now).Hours()
	if hoursAhead < minNotice {
		out = append(out, Violation{
			Code:    CodeMinNotice,
			Message: fmt.Sprintf("appointments require at least %.0f hours notice", minNotice),
			Limit:   minNotice,
			Actual:  hoursAhead,
		})
		return out
	}

	active := 0
	for _, a := range existingForDay {
		if a.Status.Active() {
			active++
		}
	}
	if active >= rs.MaxDailyAppointments {
		out = append(out, Violation{
			Code:    CodeDailyCap,
			Message: fmt.Sprintf("the business is fully booked for that day (limit %d)", rs.MaxDailyAppointments),
			Limit:   float64(rs.MaxDailyAppointments),
			Actual:  float64(active),
		})
		return out
	}

	if customerID != "" {
		end := start.Add(duration)
		for _, a := range existingForDay {
			if a.CustomerID != customerID || !a.Status.Active() {
				continue
			}
			// Half-open intervals: [start,end) overlaps [a.Start,a.End).
			if start.Before(a.EndTime) && a.StartTime.Before(end) {
				out = append(out, Violation{
					Code:    CodeCustomerOverlap,
					Message: "you already have an appointment overlapping that time",
				})
				return out
			}
		}
	}

	return out
}
