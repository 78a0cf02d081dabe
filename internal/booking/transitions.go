package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/storage"
)

// Transition moves an appointment through its lifecycle. The row is locked
// for the duration of the transaction so two concurrent transitions cannot
// both observe the old status. Cancellation frees the slot automatically:
// the exclusion constraint only covers blocking statuses.
func (c *Coordinator) Transition(ctx context.Context, appointmentID string, to model.Status, reason string) (model.Appointment, error) {
	now := c.clock.Now()

	var updated model.Appointment
	err := c.store.InTx(ctx, c.txTimeout, func(ctx context.Context, view TxView) error {
		appt, err := view.GetForUpdate(ctx, appointmentID)
		if err != nil {
			if storage.IsNotFound(err) {
				return newError(KindNotFound, "appointment not found")
			}
			return wrapError(KindTransient, "appointment load failed", err)
		}

		if appt.Status == to {
			// Repeating a transition is a no-op, not an error.
			updated = appt
			return nil
		}
		if !model.CanTransition(appt.Status, to) {
			return newError(KindPolicyViolation, "appointment cannot move from "+string(appt.Status)+" to "+string(to))
		}

		if err := view.SetStatus(ctx, appointmentID, to, reason, now); err != nil {
			return wrapError(KindTransient, "status update failed", err)
		}

		updated = appt
		updated.Status = to
		switch to {
		case model.StatusConfirmed:
			updated.ConfirmedAt = &now
		case model.StatusCompleted:
			updated.CompletedAt = &now
		case model.StatusCanceled:
			updated.CanceledAt = &now
			updated.CancelReason = reason
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == 0 {
			return model.Appointment{}, wrapError(KindTransient, "transition transaction failed", err)
		}
		return model.Appointment{}, err
	}

	if to == model.StatusCanceled {
		c.afterCancel(ctx, updated, now)
	}
	return updated, nil
}

func (c *Coordinator) Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	return c.Transition(ctx, appointmentID, model.StatusCanceled, reason)
}

func (c *Coordinator) Complete(ctx context.Context, appointmentID string) (model.Appointment, error) {
	return c.Transition(ctx, appointmentID, model.StatusCompleted, "")
}

func (c *Coordinator) Confirm(ctx context.Context, appointmentID string) (model.Appointment, error) {
	return c.Transition(ctx, appointmentID, model.StatusConfirmed, "")
}

func (c *Coordinator) NoShow(ctx context.Context, appointmentID string) (model.Appointment, error) {
	return c.Transition(ctx, appointmentID, model.StatusNoShow, "")
}

func (c *Coordinator) afterCancel(ctx context.Context, appt model.Appointment, at time.Time) {
	if c.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"staff_id":       appt.StaffID,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
		"canceled_at":    at.Format(time.RFC3339),
		"reason":         appt.CancelReason,
	})
	if err != nil {
		c.logger.Error("canceled event payload build failed", "err", err)
		return
	}
	if err := c.events.Enqueue(ctx, "appointment", appt.ID, "appointment.canceled.v1", payload); err != nil {
		c.logger.Warn("canceled event enqueue failed", "appointment_id", appt.ID, "err", err)
	}
}
