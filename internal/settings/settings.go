// Package settings resolves notification configuration. Rows may be absent
// or partially filled; both readers apply explicit defaults at this
// boundary so nothing downstream ever sees an unconfigured value.
package settings

import "context"

// Default reminder offsets (minutes before start): the 1-hour and 24-hour
// reminders most businesses run with.
var DefaultReminderOffsets = []int{60, 1440}

const (
	DefaultQuietHoursStart = ""
	DefaultQuietHoursEnd   = ""
)

// BusinessSettings is the per-business notification policy.
type BusinessSettings struct {
	BusinessID                 string
	EnableAppointmentReminders bool
	ReminderChannels           []string // allow-list; empty means all enabled channels
	SMSEnabled                 bool
	PushEnabled                bool
	EmailEnabled               bool
	ReminderOffsetsMinutes     []int
	QuietHoursStart            string // local HH:MM, empty = no quiet hours
	QuietHoursEnd              string
	Timezone                   string
}

// UserPreferences is the per-customer layer. It can only narrow what the
// business allows, never widen it.
type UserPreferences struct {
	CustomerID             string
	EnableReminders        bool
	PreferredChannels      []string // empty means no preference (accept all)
	ReminderOffsetsMinutes []int    // fallback when the business sets none
	QuietHoursStart        string
	QuietHoursEnd          string
}

// DefaultBusinessSettings is what a business without a settings row gets.
func DefaultBusinessSettings(businessID string) BusinessSettings {
	return BusinessSettings{
		BusinessID:                 businessID,
		EnableAppointmentReminders: true,
		SMSEnabled:                 true,
		PushEnabled:                true,
		EmailEnabled:               true,
		ReminderOffsetsMinutes:     append([]int(nil), DefaultReminderOffsets...),
		Timezone:                   "UTC",
	}
}

// DefaultUserPreferences is what a customer without a preferences row gets.
func DefaultUserPreferences(customerID string) UserPreferences {
	return UserPreferences{
		CustomerID:      customerID,
		EnableReminders: true,
	}
}

// Source is the read interface the scheduler and dispatch paths consume.
type Source interface {
	BusinessSettings(ctx context.Context, businessID string) (BusinessSettings, error)
	UserPreferences(ctx context.Context, customerID string) (UserPreferences, error)
	// DistinctReminderOffsets returns the union of reminder offsets
	// configured across all businesses, for scan-window derivation.
	DistinctReminderOffsets(ctx context.Context) ([]int, error)
}
