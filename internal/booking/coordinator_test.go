package booking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/randevubu/randevubu.server-sub006/internal/clock"
	"github.com/randevubu/randevubu.server-sub006/internal/directory"
	"github.com/randevubu/randevubu.server-sub006/internal/model"
)

var (
	tNow   = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tStart = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
)

// fakeStore keeps appointments in memory. InTx serializes transactions with
// a mutex and applies writes only on commit, which mimics how competing
// Postgres transactions resolve one at a time. With blindOverlapCheck set,
// the overlap reads lie and only the insert-time exclusion check fires,
// exercising the constraint-race path.
type fakeStore struct {
	mu                sync.Mutex
	appts             []model.Appointment
	blindOverlapCheck bool
}

func (s *fakeStore) snapshotForDay(appts []model.Appointment, businessID string, dayStart, dayEnd time.Time) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if a.BusinessID == businessID && !a.StartTime.Before(dayStart) && a.StartTime.Before(dayEnd) {
			out = append(out, a)
		}
	}
	return out
}

func (s *fakeStore) hasOverlap(appts []model.Appointment, businessID, staffID string, start, end time.Time) bool {
	for _, a := range appts {
		if a.BusinessID == businessID && a.StaffID == staffID && a.Status.Blocking() &&
			start.Before(a.EndTime) && a.StartTime.Before(end) {
			return true
		}
	}
	return false
}

func (s *fakeStore) ListForDay(_ context.Context, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotForDay(s.appts, businessID, dayStart, dayEnd), nil
}

func (s *fakeStore) StaffHasOverlap(_ context.Context, businessID, staffID string, start, end time.Time) (bool, error) {
	if s.blindOverlapCheck {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasOverlap(s.appts, businessID, staffID, start, end), nil
}

func (s *fakeStore) InTx(ctx context.Context, _ time.Duration, fn func(ctx context.Context, view TxView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &fakeView{store: s}
	if err := fn(ctx, v); err != nil {
		return err
	}
	s.appts = append(s.appts, v.inserted...)
	for _, su := range v.statusUpdates {
		for i := range s.appts {
			if s.appts[i].ID == su.id {
				s.appts[i].Status = su.to
			}
		}
	}
	return nil
}

type statusUpdate struct {
	id string
	to model.Status
}

type fakeView struct {
	store         *fakeStore
	inserted      []model.Appointment
	statusUpdates []statusUpdate
}

func (v *fakeView) visible() []model.Appointment {
	return append(append([]model.Appointment(nil), v.store.appts...), v.inserted...)
}

func (v *fakeView) ListForDay(_ context.Context, businessID string, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	return v.store.snapshotForDay(v.visible(), businessID, dayStart, dayEnd), nil
}

func (v *fakeView) StaffHasOverlap(_ context.Context, businessID, staffID string, start, end time.Time) (bool, error) {
	if v.store.blindOverlapCheck {
		return false, nil
	}
	return v.store.hasOverlap(v.visible(), businessID, staffID, start, end), nil
}

func (v *fakeView) Insert(_ context.Context, a *model.Appointment) error {
	// The exclusion constraint holds even when the checks are blind.
	if v.store.hasOverlap(v.visible(), a.BusinessID, a.StaffID, a.StartTime, a.EndTime) {
		return &pgconn.PgError{Code: "23P01"}
	}
	v.inserted = append(v.inserted, *a)
	return nil
}

func (v *fakeView) TouchCustomerStats(context.Context, string, string, time.Time) error { return nil }

func (v *fakeView) GetForUpdate(_ context.Context, id string) (model.Appointment, error) {
	for _, a := range v.visible() {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, pgx.ErrNoRows
}

func (v *fakeView) SetStatus(_ context.Context, id string, to model.Status, _ string, _ time.Time) error {
	v.statusUpdates = append(v.statusUpdates, statusUpdate{id: id, to: to})
	return nil
}

type fakeDirectory struct {
	business directory.Business
	service  directory.Service
	staff    directory.Staff
	customer directory.Customer
	closed   directory.ClosureStatus
	ban      directory.BanStatus
}

func (d *fakeDirectory) FindBusiness(context.Context, string) (directory.Business, error) {
	return d.business, nil
}
func (d *fakeDirectory) FindService(context.Context, string) (directory.Service, error) {
	return d.service, nil
}
func (d *fakeDirectory) FindStaff(context.Context, string) (directory.Staff, error) {
	return d.staff, nil
}
func (d *fakeDirectory) FindCustomer(context.Context, string) (directory.Customer, error) {
	return d.customer, nil
}
func (d *fakeDirectory) IsBusinessClosed(context.Context, string, string) (directory.ClosureStatus, error) {
	return d.closed, nil
}
func (d *fakeDirectory) IsCustomerBanned(context.Context, string) (directory.BanStatus, error) {
	return d.ban, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (s *recordingSink) Enqueue(_ context.Context, _, _, eventType string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.events = append(s.events, eventType)
	return nil
}

type recordingUsage struct {
	mu    sync.Mutex
	kinds []string
}

func (u *recordingUsage) Record(_ context.Context, _ string, kind string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.kinds = append(u.kinds, kind)
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		business: directory.Business{ID: "biz-1", Name: "Cut & Go", Timezone: "UTC", IsActive: true},
		service:  directory.Service{ID: "svc-1", BusinessID: "biz-1", Name: "Haircut", DurationMinutes: 30, IsActive: true},
		staff:    directory.Staff{ID: "staff-1", BusinessID: "biz-1", Name: "Deniz", IsActive: true},
		customer: directory.Customer{ID: "cust-1", Name: "Ada", Phone: "+100"},
	}
}

func newTestCoordinator(store Store, dir directory.Directory, sink EventSink, usage UsageRecorder) *Coordinator {
	logger := slog.New(slog.DiscardHandler)
	return NewCoordinator(store, dir, sink, usage, clock.Fixed{T: tNow}, logger, CoordinatorConfig{})
}

func testRequest() Request {
	return Request{BusinessID: "biz-1", ServiceID: "svc-1", StaffID: "staff-1", CustomerID: "cust-1", Start: tStart}
}

func TestBook_Success(t *testing.T) {
	store := &fakeStore{}
	sink := &recordingSink{}
	usage := &recordingUsage{}
	coord := newTestCoordinator(store, testDirectory(), sink, usage)

	appt, err := coord.Book(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", appt.Status)
	}
	if appt.ConfirmedAt == nil || appt.DurationMinutes != 30 {
		t.Fatalf("appointment not fully populated: %+v", appt)
	}
	if appt.Date != "2026-03-10" {
		t.Fatalf("day bucket = %s", appt.Date)
	}
	if len(store.appts) != 1 {
		t.Fatalf("expected 1 stored appointment, got %d", len(store.appts))
	}
	if len(sink.events) != 1 || sink.events[0] != "appointment.booked.v1" {
		t.Fatalf("events = %v", sink.events)
	}
	if len(usage.kinds) != 1 || usage.kinds[0] != "appointment_booked" {
		t.Fatalf("usage = %v", usage.kinds)
	}
}

func TestBook_MinNoticeViolation(t *testing.T) {
	dir := testDirectory()
	dir.business.MinNotificationHours = 2
	coord := newTestCoordinator(&fakeStore{}, dir, nil, nil)

	req := testRequest()
	req.Start = tNow.Add(30 * time.Minute)

	_, err := coord.Book(context.Background(), req)
	if KindOf(err) != KindPolicyViolation {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}
	var be *Error
	if !errors.As(err, &be) || len(be.Violations) == 0 || be.Violations[0].Limit != 2 {
		t.Fatalf("expected violation citing the 2 hour minimum, got %+v", be)
	}
}

func TestBook_BannedCustomer(t *testing.T) {
	dir := testDirectory()
	dir.ban = directory.BanStatus{Banned: true, Reason: "repeated no-shows"}
	coord := newTestCoordinator(&fakeStore{}, dir, nil, nil)

	_, err := coord.Book(context.Background(), testRequest())
	if KindOf(err) != KindCustomerBanned {
		t.Fatalf("expected CustomerBanned, got %v", err)
	}
}

func TestBook_IncompleteProfile(t *testing.T) {
	dir := testDirectory()
	dir.customer = directory.Customer{ID: "cust-1", Name: "Ada"} // no contact method
	coord := newTestCoordinator(&fakeStore{}, dir, nil, nil)

	_, err := coord.Book(context.Background(), testRequest())
	if KindOf(err) != KindIncompleteProfile {
		t.Fatalf("expected IncompleteProfile, got %v", err)
	}
}

func TestBook_ClosedBusiness(t *testing.T) {
	dir := testDirectory()
	dir.closed = directory.ClosureStatus{IsClosed: true, Reason: "public holiday"}
	coord := newTestCoordinator(&fakeStore{}, dir, nil, nil)

	_, err := coord.Book(context.Background(), testRequest())
	if KindOf(err) != KindBusinessClosed {
		t.Fatalf("expected BusinessClosed, got %v", err)
	}
}

func TestBook_ConcurrentSameSlot_ExactlyOneWins(t *testing.T) {
	store := &fakeStore{}
	coord := newTestCoordinator(store, testDirectory(), nil, nil)

	const racers = 8
	results := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			_, err := coord.Book(context.Background(), testRequest())
			results <- err
		}()
	}
	start.Done()

	var wins, conflicts int
	for i := 0; i < racers; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case KindOf(err) == KindSlotTaken || KindOf(err) == KindStaffUnavailable:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one booking must win, got %d wins / %d conflicts", wins, conflicts)
	}
	if len(store.appts) != 1 {
		t.Fatalf("expected exactly one stored appointment, got %d", len(store.appts))
	}
	if store.appts[0].Status != model.StatusConfirmed {
		t.Fatalf("stored status = %s", store.appts[0].Status)
	}
}

func TestBook_ConstraintRaceMapsToSlotTaken(t *testing.T) {
	// Both check layers are blinded; only the insert-time exclusion
	// constraint stands. The violation must surface as a retryable
	// slot-taken error, not a generic failure.
	store := &fakeStore{blindOverlapCheck: true}
	coord := newTestCoordinator(store, testDirectory(), nil, nil)

	if _, err := coord.Book(context.Background(), testRequest()); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	_, err := coord.Book(context.Background(), testRequest())
	if KindOf(err) != KindSlotTaken {
		t.Fatalf("expected SlotTaken from constraint violation, got %v", err)
	}
	if len(store.appts) != 1 {
		t.Fatalf("expected 1 stored appointment, got %d", len(store.appts))
	}
}

func TestBook_EventSinkFailureDoesNotFailBooking(t *testing.T) {
	store := &fakeStore{}
	sink := &recordingSink{fail: true}
	coord := newTestCoordinator(store, testDirectory(), sink, nil)

	if _, err := coord.Book(context.Background(), testRequest()); err != nil {
		t.Fatalf("Book must succeed despite sink failure: %v", err)
	}
	if len(store.appts) != 1 {
		t.Fatalf("appointment not stored")
	}
}

func TestTransition_CancelFreesSlot(t *testing.T) {
	store := &fakeStore{}
	coord := newTestCoordinator(store, testDirectory(), nil, nil)
	ctx := context.Background()

	appt, err := coord.Book(ctx, testRequest())
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := coord.Cancel(ctx, appt.ID, "customer asked"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// The same slot can be booked again after cancellation.
	if _, err := coord.Book(ctx, testRequest()); err != nil {
		t.Fatalf("rebooking a canceled slot failed: %v", err)
	}
}

func TestTransition_IllegalMove(t *testing.T) {
	store := &fakeStore{}
	coord := newTestCoordinator(store, testDirectory(), nil, nil)
	ctx := context.Background()

	appt, err := coord.Book(ctx, testRequest())
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := coord.Cancel(ctx, appt.ID, ""); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := coord.Complete(ctx, appt.ID); KindOf(err) != KindPolicyViolation {
		t.Fatalf("expected PolicyViolation completing a canceled appointment, got %v", err)
	}

	// Repeating the same transition is a no-op.
	if _, err := coord.Cancel(ctx, appt.ID, ""); err != nil {
		t.Fatalf("repeated cancel must be a no-op: %v", err)
	}
}

func TestTransition_NotFound(t *testing.T) {
	coord := newTestCoordinator(&fakeStore{}, testDirectory(), nil, nil)
	_, err := coord.Cancel(context.Background(), "missing", "")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
