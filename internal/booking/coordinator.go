package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randevubu/randevubu.server-sub006/internal/clock"
	"github.com/randevubu/randevubu.server-sub006/internal/directory"
	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/rules"
	"github.com/randevubu/randevubu.server-sub006/internal/storage"
)

// EventSink receives domain events after a successful booking operation.
// Delivery is best-effort from the coordinator's perspective: a sink
// failure is logged and never rolls back the booking.
type EventSink interface {
	Enqueue(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error
}

// UsageRecorder is the billing/quota side effect, fire-and-forget.
type UsageRecorder interface {
	Record(ctx context.Context, businessID, kind string)
}

type Request struct {
	BusinessID string
	ServiceID  string
	StaffID    string
	CustomerID string
	Start      time.Time
}

// Coordinator owns the booking concurrency guarantee. The rule evaluation
// runs twice: once against the pool for a cheap early rejection and once
// inside the transaction against its own read view. The storage exclusion
// constraint is the final defense; a 23P01 there becomes a retryable
// slot-taken error instead of a double booking.
type Coordinator struct {
	store     Store
	dir       directory.Directory
	events    EventSink
	usage     UsageRecorder
	clock     clock.Clock
	logger    *slog.Logger
	txTimeout time.Duration
}

type CoordinatorConfig struct {
	TxTimeout time.Duration
}

func NewCoordinator(store Store, dir directory.Directory, events EventSink, usage UsageRecorder, clk clock.Clock, logger *slog.Logger, cfg CoordinatorConfig) *Coordinator {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Coordinator{
		store:     store,
		dir:       dir,
		events:    events,
		usage:     usage,
		clock:     clk,
		logger:    logger,
		txTimeout: cfg.TxTimeout,
	}
}

func (c *Coordinator) Book(ctx context.Context, req Request) (model.Appointment, error) {
	now := c.clock.Now()

	business, err := c.dir.FindBusiness(ctx, req.BusinessID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, newError(KindNotFound, "business not found")
		}
		return model.Appointment{}, wrapError(KindTransient, "business lookup failed", err)
	}
	if !business.IsActive {
		return model.Appointment{}, newError(KindBusinessClosed, "business is not accepting bookings")
	}

	loc := clock.LoadLocation(business.Timezone)
	day := clock.DayKey(req.Start, loc)

	closed, err := c.dir.IsBusinessClosed(ctx, business.ID, day)
	if err != nil {
		return model.Appointment{}, wrapError(KindTransient, "closure lookup failed", err)
	}
	if closed.IsClosed {
		msg := "business is closed on that day"
		if closed.Reason != "" {
			msg = "business is closed: " + closed.Reason
		}
		return model.Appointment{}, newError(KindBusinessClosed, msg)
	}

	service, err := c.dir.FindService(ctx, req.ServiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, newError(KindNotFound, "service not found")
		}
		return model.Appointment{}, wrapError(KindTransient, "service lookup failed", err)
	}
	if service.BusinessID != business.ID {
		return model.Appointment{}, newError(KindNotFound, "service not found")
	}
	if !service.IsActive {
		return model.Appointment{}, newError(KindServiceUnavailable, "service is not available")
	}

	staff, err := c.dir.FindStaff(ctx, req.StaffID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, newError(KindNotFound, "staff member not found")
		}
		return model.Appointment{}, wrapError(KindTransient, "staff lookup failed", err)
	}
	if staff.BusinessID != business.ID || !staff.IsActive {
		return model.Appointment{}, newError(KindStaffUnavailable, "staff member is not available")
	}

	customer, err := c.dir.FindCustomer(ctx, req.CustomerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, newError(KindNotFound, "customer not found")
		}
		return model.Appointment{}, wrapError(KindTransient, "customer lookup failed", err)
	}
	if customer.Name == "" || (customer.Phone == "" && customer.Email == "") {
		return model.Appointment{}, newError(KindIncompleteProfile, "customer profile is missing a name or contact method")
	}

	ban, err := c.dir.IsCustomerBanned(ctx, req.CustomerID)
	if err != nil {
		return model.Appointment{}, wrapError(KindTransient, "ban lookup failed", err)
	}
	if ban.Banned {
		msg := "customer is not allowed to book"
		if ban.Reason != "" {
			msg += ": " + ban.Reason
		}
		return model.Appointment{}, newError(KindCustomerBanned, msg)
	}

	ruleset := rules.Ruleset{
		MaxAdvanceBookingDays:       business.MaxAdvanceBookingDays,
		MinNotificationHours:        business.MinNotificationHours,
		MaxDailyAppointments:        business.MaxDailyAppointments,
		ServiceMinNotificationHours: service.MinNotificationHours,
	}
	if service.MaxAdvanceDays > 0 {
		ruleset.MaxAdvanceBookingDays = service.MaxAdvanceDays
	}

	duration := time.Duration(service.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	end := req.Start.Add(duration)
	dayStart, dayEnd := clock.DayBounds(req.Start, loc)

	// Pre-check outside the transaction: fast fail for the common case.
	existing, err := c.store.ListForDay(ctx, business.ID, dayStart, dayEnd)
	if err != nil {
		return model.Appointment{}, wrapError(KindTransient, "availability read failed", err)
	}
	if vs := rules.Evaluate(ruleset, req.Start, duration, now, existing, req.CustomerID); len(vs) > 0 {
		return model.Appointment{}, policyError(vs)
	}
	taken, err := c.store.StaffHasOverlap(ctx, business.ID, staff.ID, req.Start, end)
	if err != nil {
		return model.Appointment{}, wrapError(KindTransient, "availability read failed", err)
	}
	if taken {
		return model.Appointment{}, newError(KindStaffUnavailable, "the staff member is already booked at that time")
	}

	appt := model.Appointment{
		ID:              uuid.NewString(),
		BusinessID:      business.ID,
		ServiceID:       service.ID,
		StaffID:         staff.ID,
		CustomerID:      customer.ID,
		Date:            day,
		StartTime:       req.Start.UTC(),
		EndTime:         end.UTC(),
		DurationMinutes: int(duration / time.Minute),
		Status:          model.StatusConfirmed,
		Price:           service.Price,
		Currency:        service.Currency,
		BookedAt:        now,
		ConfirmedAt:     &now,
	}

	err = c.store.InTx(ctx, c.txTimeout, func(ctx context.Context, view TxView) error {
		// Re-check on the transaction's own read view. This is the
		// authoritative evaluation; the pre-check above is only an
		// optimization.
		existing, err := view.ListForDay(ctx, business.ID, dayStart, dayEnd)
		if err != nil {
			return wrapError(KindTransient, "availability read failed", err)
		}
		if vs := rules.Evaluate(ruleset, req.Start, duration, now, existing, req.CustomerID); len(vs) > 0 {
			return policyError(vs)
		}
		taken, err := view.StaffHasOverlap(ctx, business.ID, staff.ID, req.Start, end)
		if err != nil {
			return wrapError(KindTransient, "availability read failed", err)
		}
		if taken {
			return newError(KindSlotTaken, "the time slot was just taken, pick another")
		}

		if err := view.Insert(ctx, &appt); err != nil {
			if storage.IsConflict(err) {
				// Both checks raced; the exclusion constraint held the line.
				return newError(KindSlotTaken, "the time slot was just taken, pick another")
			}
			return wrapError(KindTransient, "appointment insert failed", err)
		}
		return view.TouchCustomerStats(ctx, customer.ID, business.ID, now)
	})
	if err != nil {
		if KindOf(err) == 0 {
			// Untyped: begin/commit/deadline failure.
			return model.Appointment{}, wrapError(KindTransient, "booking transaction failed", err)
		}
		return model.Appointment{}, err
	}

	c.afterBooking(ctx, appt, customer)
	return appt, nil
}

// afterBooking runs the best-effort success side effects. None of them can
// undo the committed booking.
func (c *Coordinator) afterBooking(ctx context.Context, appt model.Appointment, customer directory.Customer) {
	if c.usage != nil {
		c.usage.Record(ctx, appt.BusinessID, "appointment_booked")
	}
	if c.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"service_id":     appt.ServiceID,
		"staff_id":       appt.StaffID,
		"customer_id":    appt.CustomerID,
		"customer_name":  customer.Name,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
	})
	if err != nil {
		c.logger.Error("booked event payload build failed", "err", err)
		return
	}
	if err := c.events.Enqueue(ctx, "appointment", appt.ID, "appointment.booked.v1", payload); err != nil {
		c.logger.Warn("booked event enqueue failed", "appointment_id", appt.ID, "err", err)
	}
}
