package booking

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/storage"
	"github.com/randevubu/randevubu.server-sub006/libs/db"
)

// TxView is the slice of appointment storage visible inside a booking
// transaction. The re-check reads through it so it sees the transaction's
// own read view, not a stale snapshot.
type TxView interface {
	ListForDay(ctx context.Context, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error)
	StaffHasOverlap(ctx context.Context, businessID, staffID string, start, end time.Time) (bool, error)
	Insert(ctx context.Context, a *model.Appointment) error
	TouchCustomerStats(ctx context.Context, customerID, businessID string, at time.Time) error
	GetForUpdate(ctx context.Context, id string) (model.Appointment, error)
	SetStatus(ctx context.Context, id string, to model.Status, reason string, at time.Time) error
}

// Store is the appointment storage the coordinator runs against.
type Store interface {
	ListForDay(ctx context.Context, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error)
	StaffHasOverlap(ctx context.Context, businessID, staffID string, start, end time.Time) (bool, error)
	// InTx runs fn inside one transaction with the given deadline.
	InTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, view TxView) error) error
}

// PgxStore adapts the pgx appointment repository to the Store interface.
type PgxStore struct {
	pool *db.Pool
	repo *storage.AppointmentRepository
}

func NewPgxStore(pool *db.Pool, repo *storage.AppointmentRepository) *PgxStore {
	return &PgxStore{pool: pool, repo: repo}
}

var _ Store = (*PgxStore)(nil)

func (s *PgxStore) ListForDay(ctx context.Context, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	return s.repo.ListForDay(ctx, businessID, dayStart, dayEnd)
}

func (s *PgxStore) StaffHasOverlap(ctx context.Context, businessID, staffID string, start, end time.Time) (bool, error) {
	return s.repo.StaffHasOverlap(ctx, businessID, staffID, start, end)
}

func (s *PgxStore) InTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, view TxView) error) error {
	return s.pool.WithTx(ctx, timeout, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgxTxView{repo: s.repo, tx: tx})
	})
}

type pgxTxView struct {
	repo *storage.AppointmentRepository
	tx   pgx.Tx
}

func (v *pgxTxView) ListForDay(ctx context.Context, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	return v.repo.ListForDayTx(ctx, v.tx, businessID, dayStart, dayEnd)
}

func (v *pgxTxView) StaffHasOverlap(ctx context.Context, businessID, staffID string, start, end time.Time) (bool, error) {
	return v.repo.StaffHasOverlapTx(ctx, v.tx, businessID, staffID, start, end)
}

func (v *pgxTxView) Insert(ctx context.Context, a *model.Appointment) error {
	return v.repo.Insert(ctx, v.tx, a)
}

func (v *pgxTxView) TouchCustomerStats(ctx context.Context, customerID, businessID string, at time.Time) error {
	return v.repo.TouchCustomerStats(ctx, v.tx, customerID, businessID, at)
}

func (v *pgxTxView) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return v.repo.GetForUpdate(ctx, v.tx, id)
}

func (v *pgxTxView) SetStatus(ctx context.Context, id string, to model.Status, reason string, at time.Time) error {
	return v.repo.SetStatus(ctx, v.tx, id, to, reason, at)
}
