package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/remote"
)

// NewAppointment is what the scheduling form supplies for a new visit.
type NewAppointment struct {
	CompanyID     string
	CompanyName   string
	StartAt       time.Time
	EndAt         time.Time
	Address       string
	Opportunities []string
}

// CreateAppointment creates a new visit. Online it inserts directly
// against the backend and returns the canonical record. Offline (or on a
// connectivity failure) it fabricates a complete appointment under a
// local identifier, stores it as pending, and makes it visible in the
// active snapshot immediately.
//
// Two offline creations for the same company and slot are both retained;
// overlap resolution is a UI concern.
func (e *Engine) CreateAppointment(ctx context.Context, in NewAppointment) (model.Appointment, error) {
	now := e.now()
	appt := model.Appointment{
		CompanyID:     in.CompanyID,
		CompanyName:   in.CompanyName,
		Consultant:    e.user,
		CreatedBy:     e.user,
		StartAt:       in.StartAt,
		EndAt:         in.EndAt,
		Status:        model.StatusScheduled,
		Address:       in.Address,
		Opportunities: in.Opportunities,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if e.monitor.Online() {
		created, err := e.backend.InsertAppointment(ctx, appt)
		if err == nil {
			if mergeErr := e.mergeAppointment(ctx, created); mergeErr != nil {
				return created, mergeErr
			}
			return created, nil
		}
		if !remote.IsConnectivity(err) {
			return model.Appointment{}, err
		}
		e.monitor.SetOnline(false)
		e.log.Warn("remote insert failed, fabricating locally", "company", in.CompanyID, "err", err)
	}

	appt.ID = model.NewLocalID()
	appt.PendingSync = true
	appt.LocalCreatedAt = now.UnixMilli()

	if err := e.store.PutPendingAppointment(ctx, appt); err != nil {
		return model.Appointment{}, fmt.Errorf("store pending appointment: %w", err)
	}
	if err := e.mergeAppointment(ctx, appt); err != nil {
		return appt, err
	}
	return appt, nil
}
