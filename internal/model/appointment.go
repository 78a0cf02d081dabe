package model

import "time"

// Status is the appointment lifecycle state. Only CONFIRMED and IN_PROGRESS
// block a staff time slot; the overlap exclusion constraint covers exactly
// those two.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCanceled   Status = "CANCELED"
	StatusNoShow     Status = "NO_SHOW"
)

// Blocking reports whether an appointment in this status occupies its slot.
func (s Status) Blocking() bool {
	return s == StatusConfirmed || s == StatusInProgress
}

// Active reports whether the appointment still counts against daily caps
// and customer conflict checks. Everything except CANCELED counts.
func (s Status) Active() bool {
	return s != StatusCanceled
}

var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCanceled},
	StatusConfirmed:  {StatusInProgress, StatusCompleted, StatusCanceled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCanceled},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
// Terminal statuses (COMPLETED, CANCELED, NO_SHOW) have no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID              string
	BusinessID      string
	ServiceID       string
	StaffID         string
	CustomerID      string
	Date            string // business-local day bucket, YYYY-MM-DD
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Status          Status
	Price           string
	Currency        string
	ReminderSent    bool
	ReminderSentAt  *time.Time
	BookedAt        time.Time
	ConfirmedAt     *time.Time
	CompletedAt     *time.Time
	CanceledAt      *time.Time
	CancelReason    string
}

// ReminderCandidate is the scan-time projection of an appointment plus the
// display fields a reminder message needs. It lives for one scheduler tick.
type ReminderCandidate struct {
	AppointmentID string
	BusinessID    string
	BusinessName  string
	ServiceName   string
	CustomerID    string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	PushEndpoint  string
	PushP256DH    string
	PushAuth      string
	StartTime     time.Time
}
