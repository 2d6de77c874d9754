package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/remote"
)

// CheckIn records arrival at the appointment: status becomes in_progress
// with the check-in timestamp and geolocation.
func (e *Engine) CheckIn(ctx context.Context, id string, geo model.Geo) error {
	at := e.now()
	changes := map[string]any{
		"status":     string(model.StatusInProgress),
		"checkInAt":  at.UTC().Format(time.RFC3339),
		"checkInGeo": geoChange(geo),
		"updatedAt":  at.UTC().Format(time.RFC3339),
	}
	return e.applyTransition(ctx, id, model.ActionCheckIn, changes, func(appt *model.Appointment) {
		appt.Status = model.StatusInProgress
		appt.CheckInAt = &at
		g := geo
		appt.CheckInGeo = &g
	})
}

// CheckOut records departure: status becomes done with the check-out
// timestamp and geolocation.
func (e *Engine) CheckOut(ctx context.Context, id string, geo model.Geo) error {
	at := e.now()
	changes := map[string]any{
		"status":      string(model.StatusDone),
		"checkOutAt":  at.UTC().Format(time.RFC3339),
		"checkOutGeo": geoChange(geo),
		"updatedAt":   at.UTC().Format(time.RFC3339),
	}
	return e.applyTransition(ctx, id, model.ActionCheckOut, changes, func(appt *model.Appointment) {
		appt.Status = model.StatusDone
		appt.CheckOutAt = &at
		g := geo
		appt.CheckOutGeo = &g
	})
}

// MarkAbsent records that the customer was not available. Terminal from
// scheduled.
func (e *Engine) MarkAbsent(ctx context.Context, id, reason, note string) error {
	at := e.now()
	changes := map[string]any{
		"status":        string(model.StatusAbsent),
		"absenceReason": reason,
		"absenceNote":   note,
		"updatedAt":     at.UTC().Format(time.RFC3339),
	}
	return e.applyTransition(ctx, id, model.ActionAbsence, changes, func(appt *model.Appointment) {
		appt.Status = model.StatusAbsent
		appt.AbsenceReason = reason
		appt.AbsenceNote = note
	})
}

func geoChange(geo model.Geo) map[string]any {
	return map[string]any{
		"lat":        geo.Lat,
		"lng":        geo.Lng,
		"accuracy":   geo.Accuracy,
		"capturedAt": geo.CapturedAt.UTC().Format(time.RFC3339),
	}
}

// applyTransition performs one state transition. The remote change-set
// and the local apply function carry the same information; the change-set
// is absolute-valued so replaying it later is idempotent.
//
// Preconditions (valid source status) are the caller's concern: the
// orchestrator trusts the UI guards and stays idempotent-safe instead of
// state-machine-enforcing.
func (e *Engine) applyTransition(ctx context.Context, id string, action model.MutationAction, changes map[string]any, apply func(*model.Appointment)) error {
	if !e.busy.tryAcquire(id) {
		return ErrBusy
	}
	defer e.busy.release(id)

	appt, ok := e.Appointment(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// A locally fabricated appointment has no remote row to update; its
	// transitions always queue and replay after creation.
	if e.monitor.Online() && !model.IsLocalID(id) {
		updated, err := e.backend.UpdateAppointment(ctx, id, changes)
		if err == nil {
			return e.mergeAppointment(ctx, updated)
		}
		if !remote.IsConnectivity(err) {
			return err
		}
		e.monitor.SetOnline(false)
		e.log.Warn("remote update failed, queuing", "appointment", id, "action", action, "err", err)
	}

	apply(&appt)
	appt.UpdatedAt = e.now()

	mergeErr := e.mergeAppointment(ctx, appt)

	if appt.PendingSync {
		// Keep the pending payload current so a restart before sync still
		// sees the transition.
		if err := e.store.PutPendingAppointment(ctx, appt); err != nil {
			return fmt.Errorf("update pending appointment: %w", err)
		}
	}

	mut := model.PendingMutation{
		ID:            model.NewMutationID(),
		User:          e.user,
		AppointmentID: id,
		Action:        action,
		Changes:       changes,
		CreatedAt:     e.now(),
	}
	if err := e.store.EnqueueMutation(ctx, mut); err != nil {
		return fmt.Errorf("queue mutation: %w", err)
	}

	// Surfaced last: the mutation is queued and in-memory state is
	// current, but snapshot durability could not be confirmed.
	return mergeErr
}
