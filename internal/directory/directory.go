// Package directory exposes the booking core's read-only view of the
// business/service/staff/customer records. The CRUD that writes these
// tables lives outside this service; the core only consumes the narrow
// lookups defined here.
package directory

import (
	"context"
	"time"
)

type Business struct {
	ID       string
	Name     string
	Timezone string
	IsActive bool

	// Reservation policy columns; zero means "use the default".
	MaxAdvanceBookingDays int
	MinNotificationHours  float64
	MaxDailyAppointments  int
}

type Service struct {
	ID                   string
	BusinessID           string
	Name                 string
	DurationMinutes      int
	MinNotificationHours float64 // 0 means use the business default
	MaxAdvanceDays       int     // 0 means use the business default
	Price                string
	Currency             string
	IsActive             bool
}

type Staff struct {
	ID         string
	BusinessID string
	Name       string
	IsActive   bool
}

type Customer struct {
	ID    string
	Name  string
	Phone string
	Email string
}

type ClosureStatus struct {
	IsClosed bool
	Reason   string
}

type BanStatus struct {
	Banned bool
	Until  *time.Time
	Reason string
}

type Directory interface {
	FindBusiness(ctx context.Context, id string) (Business, error)
	FindService(ctx context.Context, id string) (Service, error)
	FindStaff(ctx context.Context, id string) (Staff, error)
	FindCustomer(ctx context.Context, id string) (Customer, error)
	IsBusinessClosed(ctx context.Context, businessID string, day string) (ClosureStatus, error)
	IsCustomerBanned(ctx context.Context, customerID string) (BanStatus, error)
}
