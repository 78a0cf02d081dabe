package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/libs/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the overlap
// queries can run against the pool (pre-check) and against a transaction's
// read view (the authoritative re-check) with the same code.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `
	id::text, business_id::text, service_id::text, staff_id::text, customer_id::text,
	date, start_time, end_time, duration_minutes, status,
	COALESCE(price::text, ''), COALESCE(currency, ''),
	reminder_sent, reminder_sent_at, booked_at,
	confirmed_at, completed_at, canceled_at, COALESCE(cancel_reason, '')`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.BusinessID, &a.ServiceID, &a.StaffID, &a.CustomerID,
		&a.Date, &a.StartTime, &a.EndTime, &a.DurationMinutes, &status,
		&a.Price, &a.Currency,
		&a.ReminderSent, &a.ReminderSentAt, &a.BookedAt,
		&a.ConfirmedAt, &a.CompletedAt, &a.CanceledAt, &a.CancelReason,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}

// Insert writes a new appointment row inside the booking transaction. The
// exclusion constraint on (business_id, staff_id, timerange) for blocking
// statuses fires here when two transactions race past the re-check; the
// caller maps that to a slot-taken error via IsConflict.
func (r *AppointmentRepository) Insert(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, business_id, service_id, staff_id, customer_id, date,
			 start_time, end_time, duration_minutes, status, price, currency,
			 booked_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '')::numeric, $12, $13, $14)
	`, a.ID, a.BusinessID, a.ServiceID, a.StaffID, a.CustomerID, a.Date,
		a.StartTime, a.EndTime, a.DurationMinutes, string(a.Status), a.Price, a.Currency,
		a.BookedAt, a.ConfirmedAt)
	return err
}

// ListForDay returns the business's appointments whose start falls inside
// [dayStart, dayEnd), any status. Rule evaluation filters canceled rows.
func (r *AppointmentRepository) ListForDay(ctx context.Context, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	return r.listForDay(ctx, r.pool, businessID, dayStart, dayEnd)
}

// ListForDayTx is ListForDay on the transaction's read view.
func (r *AppointmentRepository) ListForDayTx(ctx context.Context, tx pgx.Tx, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	return r.listForDay(ctx, tx, businessID, dayStart, dayEnd)
}

func (r *AppointmentRepository) listForDay(ctx context.Context, q querier, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time
	`, businessID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// StaffHasOverlap reports whether any blocking appointment for the staff
// member overlaps [start, end). Used for the fast-fail pre-check; the
// in-transaction variant plus the exclusion constraint are the authority.
func (r *AppointmentRepository) StaffHasOverlap(ctx context.Context, businessID, staffID string, start, end time.Time) (bool, error) {
	return r.staffHasOverlap(ctx, r.pool, businessID, staffID, start, end)
}

func (r *AppointmentRepository) StaffHasOverlapTx(ctx context.Context, tx pgx.Tx, businessID, staffID string, start, end time.Time) (bool, error) {
	return r.staffHasOverlap(ctx, tx, businessID, staffID, start, end)
}

func (r *AppointmentRepository) staffHasOverlap(ctx context.Context, q querier, businessID, staffID string, start, end time.Time) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE business_id = $1
				AND staff_id = $2
				AND status IN ('CONFIRMED', 'IN_PROGRESS')
				AND start_time < $4
				AND end_time > $3
		)
	`, businessID, staffID, start, end).Scan(&exists)
	return exists, err
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

// SetStatus performs a lifecycle transition and stamps the matching
// timestamp column. Legality is the caller's responsibility; this only
// writes the row.
func (r *AppointmentRepository) SetStatus(ctx context.Context, tx pgx.Tx, id string, to model.Status, reason string, at time.Time) error {
	var err error
	switch to {
	case model.StatusConfirmed:
		_, err = tx.Exec(ctx, `UPDATE appointments SET status = $2, confirmed_at = $3 WHERE id = $1`, id, string(to), at)
	case model.StatusCompleted:
		_, err = tx.Exec(ctx, `UPDATE appointments SET status = $2, completed_at = $3 WHERE id = $1`, id, string(to), at)
	case model.StatusCanceled:
		_, err = tx.Exec(ctx, `UPDATE appointments SET status = $2, canceled_at = $3, cancel_reason = $4 WHERE id = $1`, id, string(to), at, reason)
	case model.StatusInProgress, model.StatusNoShow:
		_, err = tx.Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, string(to))
	default:
		err = fmt.Errorf("unsupported status transition target %q", to)
	}
	return err
}

// FindReminderCandidates returns CONFIRMED, not-yet-reminded appointments
// starting inside [from, to], joined with the display fields a reminder
// message needs. Earliest start first so the soonest appointments are
// processed before the tick deadline can cut the batch short.
func (r *AppointmentRepository) FindReminderCandidates(ctx context.Context, from, to time.Time, limit int) ([]model.ReminderCandidate, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.business_id::text, b.name,
			COALESCE(s.name, ''), a.customer_id::text,
			COALESCE(c.name, ''), COALESCE(c.phone, ''), COALESCE(c.email, ''),
			COALESCE(c.push_endpoint, ''), COALESCE(c.push_p256dh, ''), COALESCE(c.push_auth, ''),
			a.start_time
		FROM appointments a
		JOIN businesses b ON b.id = a.business_id
		LEFT JOIN business_services s ON s.id = a.service_id
		LEFT JOIN customers c ON c.id = a.customer_id
		WHERE a.status = 'CONFIRMED'
			AND a.reminder_sent = false
			AND a.start_time >= $1
			AND a.start_time <= $2
		ORDER BY a.start_time
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReminderCandidate
	for rows.Next() {
		var c model.ReminderCandidate
		if err := rows.Scan(
			&c.AppointmentID, &c.BusinessID, &c.BusinessName,
			&c.ServiceName, &c.CustomerID,
			&c.CustomerName, &c.CustomerPhone, &c.CustomerEmail,
			&c.PushEndpoint, &c.PushP256DH, &c.PushAuth,
			&c.StartTime,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MarkReminderSent flips reminder_sent false -> true. The conditional WHERE
// makes the transition happen at most once even if two instances dispatch
// the same candidate during a lock-store outage; the second caller sees
// false and must not re-send on later ticks.
func (r *AppointmentRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = true, reminder_sent_at = $2
		WHERE id = $1 AND reminder_sent = false
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TouchCustomerStats bumps the customer's booking counters inside the
// booking transaction.
func (r *AppointmentRepository) TouchCustomerStats(ctx context.Context, tx pgx.Tx, customerID, businessID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO customer_stats (customer_id, business_id, total_bookings, last_booked_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (customer_id, business_id) DO UPDATE
		SET total_bookings = customer_stats.total_bookings + 1,
			last_booked_at = EXCLUDED.last_booked_at
	`, customerID, businessID, at)
	return err
}

// ListBlockingIntervals returns the blocking appointments for a staff
// member overlapping [from, to). Canceled and finished rows do not block.
func (r *AppointmentRepository) ListBlockingIntervals(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND staff_id = $2
			AND status IN ('CONFIRMED', 'IN_PROGRESS')
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time
	`, businessID, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *AppointmentRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// IsConflict reports a Postgres exclusion constraint violation (23P01),
// the storage-level defense against two overlapping blocking appointments.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
