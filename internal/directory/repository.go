package directory

import (
	"context"
	"time"

	"github.com/randevubu/randevubu.server-sub006/libs/db"
)

// Repository reads the shared directory tables through pgx.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Directory = (*Repository)(nil)

func (r *Repository) FindBusiness(ctx context.Context, id string) (Business, error) {
	var b Business
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(timezone, 'UTC'), is_active,
			COALESCE(max_advance_booking_days, 0),
			COALESCE(min_notification_hours, 0),
			COALESCE(max_daily_appointments, 0)
		FROM businesses
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Timezone, &b.IsActive,
		&b.MaxAdvanceBookingDays, &b.MinNotificationHours, &b.MaxDailyAppointments)
	return b, err
}

func (r *Repository) FindService(ctx context.Context, id string) (Service, error) {
	var s Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes,
			COALESCE(min_notification_hours, 0), COALESCE(max_advance_days, 0),
			COALESCE(price::text, ''), COALESCE(currency, ''), is_active
		FROM business_services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes,
		&s.MinNotificationHours, &s.MaxAdvanceDays,
		&s.Price, &s.Currency, &s.IsActive)
	return s, err
}

func (r *Repository) FindStaff(ctx context.Context, id string) (Staff, error) {
	var s Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, is_active
		FROM staff
		WHERE id = $1
	`, id).Scan(&s.ID, &s.BusinessID, &s.Name, &s.IsActive)
	return s, err
}

func (r *Repository) FindCustomer(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(name, ''), COALESCE(phone, ''), COALESCE(email, '')
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email)
	return c, err
}

func (r *Repository) IsBusinessClosed(ctx context.Context, businessID string, day string) (ClosureStatus, error) {
	var st ClosureStatus
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM business_closures
			WHERE business_id = $1 AND closed_on = $2::date
		),
		COALESCE((
			SELECT reason FROM business_closures
			WHERE business_id = $1 AND closed_on = $2::date
			LIMIT 1
		), '')
	`, businessID, day).Scan(&st.IsClosed, &st.Reason)
	return st, err
}

func (r *Repository) IsCustomerBanned(ctx context.Context, customerID string) (BanStatus, error) {
	var st BanStatus
	var until *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT is_banned, banned_until, COALESCE(ban_reason, '')
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&st.Banned, &until, &st.Reason)
	if err != nil {
		return BanStatus{}, err
	}
	st.Until = until
	// An expired temporary ban no longer blocks bookings.
	if st.Banned && until != nil && until.Before(time.Now().UTC()) {
		st.Banned = false
	}
	return st, nil
}
