package settings

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/randevubu/randevubu.server-sub006/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Source = (*Repository)(nil)

func (r *Repository) BusinessSettings(ctx context.Context, businessID string) (BusinessSettings, error) {
	s := DefaultBusinessSettings(businessID)
	err := r.pool.QueryRow(ctx, `
		SELECT ns.enable_appointment_reminders,
			COALESCE(ns.reminder_channels, '{}'),
			ns.sms_enabled, ns.push_enabled, ns.email_enabled,
			COALESCE(ns.reminder_offsets_minutes, '{}'),
			COALESCE(ns.quiet_hours_start, ''), COALESCE(ns.quiet_hours_end, ''),
			COALESCE(b.timezone, 'UTC')
		FROM notification_settings ns
		JOIN businesses b ON b.id = ns.business_id
		WHERE ns.business_id = $1
	`, businessID).Scan(
		&s.EnableAppointmentReminders,
		&s.ReminderChannels,
		&s.SMSEnabled, &s.PushEnabled, &s.EmailEnabled,
		&s.ReminderOffsetsMinutes,
		&s.QuietHoursStart, &s.QuietHoursEnd,
		&s.Timezone,
	)
	if err == pgx.ErrNoRows {
		return DefaultBusinessSettings(businessID), nil
	}
	if err != nil {
		return BusinessSettings{}, err
	}
	if len(s.ReminderOffsetsMinutes) == 0 {
		s.ReminderOffsetsMinutes = append([]int(nil), DefaultReminderOffsets...)
	}
	return s, nil
}

func (r *Repository) UserPreferences(ctx context.Context, customerID string) (UserPreferences, error) {
	p := DefaultUserPreferences(customerID)
	err := r.pool.QueryRow(ctx, `
		SELECT enable_reminders,
			COALESCE(preferred_channels, '{}'),
			COALESCE(reminder_offsets_minutes, '{}'),
			COALESCE(quiet_hours_start, ''), COALESCE(quiet_hours_end, '')
		FROM notification_preferences
		WHERE customer_id = $1
	`, customerID).Scan(
		&p.EnableReminders,
		&p.PreferredChannels,
		&p.ReminderOffsetsMinutes,
		&p.QuietHoursStart, &p.QuietHoursEnd,
	)
	if err == pgx.ErrNoRows {
		return DefaultUserPreferences(customerID), nil
	}
	if err != nil {
		return UserPreferences{}, err
	}
	return p, nil
}

// DistinctReminderOffsets unions the offsets configured by businesses with
// those set in user preferences: a preference offset fills the gap when a
// business configures none, so the scan window must cover both layers.
func (r *Repository) DistinctReminderOffsets(ctx context.Context) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT off FROM (
			SELECT unnest(reminder_offsets_minutes) AS off
			FROM notification_settings
			WHERE enable_appointment_reminders = true
			UNION
			SELECT unnest(reminder_offsets_minutes)
			FROM notification_preferences
			WHERE enable_reminders = true
		) offsets
		ORDER BY off
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			out = append(out, n)
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
