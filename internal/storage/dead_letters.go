package storage

import (
	"context"
	"time"

	"github.com/randevubu/randevubu.server-sub006/libs/db"
)

// DeadLetter is the durable record of a reminder that exhausted its retry
// budget with zero successful channels.
type DeadLetter struct {
	ID            int64
	AppointmentID string
	CustomerID    string
	BusinessID    string
	Error         string
	CreatedAt     time.Time
}

type DeadLetterRepository struct {
	pool *db.Pool
}

func NewDeadLetterRepository(pool *db.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{pool: pool}
}

func (r *DeadLetterRepository) Insert(ctx context.Context, dl DeadLetter) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dead_letters (appointment_id, customer_id, business_id, error)
		VALUES ($1, $2, $3, $4)
	`, dl.AppointmentID, dl.CustomerID, dl.BusinessID, dl.Error)
	return err
}

func (r *DeadLetterRepository) ListRecent(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id::text, customer_id::text, business_id::text, error, created_at
		FROM dead_letters
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.AppointmentID, &dl.CustomerID, &dl.BusinessID, &dl.Error, &dl.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
