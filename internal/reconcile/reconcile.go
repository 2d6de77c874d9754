// Package reconcile drives locally queued state (pending appointments,
// pending mutations, pending media) to a fully-synced remote state.
//
// Reconciliation runs on demand, typically on reconnect or explicit sync.
// Each step is independently retryable and leaves the store consistent if
// interrupted:
//
//  1. A pending appointment is created remotely, then every dependent
//     record is rebound from the local identifier to the issued remote one
//     and the pending record deleted, atomically, and strictly before any
//     replay, or the dependents would target a non-existent row.
//  2. Pending mutations replay in creation order, best-effort: one
//     rejected mutation is logged and left queued without blocking the
//     rest.
//  3. Pending media uploads, same semantics.
//
// Nothing leaves a pending partition without a confirmed remote success.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agendae/fieldsync/internal/media"
	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/netmon"
	"github.com/agendae/fieldsync/internal/remote"
	"github.com/agendae/fieldsync/internal/store"
)

// ErrOffline means reconciliation was requested while the backend is
// unreachable; nothing was attempted.
var ErrOffline = errors.New("backend unreachable")

// Report counts what one reconciliation pass accomplished, so callers can
// decide whether to retry later.
type Report struct {
	AppointmentsCreated int `json:"appointmentsCreated"`
	MutationsApplied    int `json:"mutationsApplied"`
	MediaUploaded       int `json:"mediaUploaded"`
	MediaSkipped        int `json:"mediaSkipped"`
	Failures            int `json:"failures"`
}

func (r *Report) add(other Report) {
	r.AppointmentsCreated += other.AppointmentsCreated
	r.MutationsApplied += other.MutationsApplied
	r.MediaUploaded += other.MediaUploaded
	r.MediaSkipped += other.MediaSkipped
	r.Failures += other.Failures
}

// Engine is the reconciliation engine.
type Engine struct {
	store   *store.Store
	backend remote.Backend
	monitor *netmon.Monitor
	media   *media.Pipeline
	log     *slog.Logger
	user    string

	// createWindow bounds the retry window for creating one pending
	// appointment remotely. A request stuck past this window leaves the
	// record queued for the next attempt instead of blocking the queue
	// indefinitely.
	createWindow time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithCreateWindow overrides the bounded retry window for remote creates.
func WithCreateWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.createWindow = d
	}
}

// New creates a reconciliation engine for one user.
func New(st *store.Store, backend remote.Backend, monitor *netmon.Monitor, pipeline *media.Pipeline, user string, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		backend:      backend,
		monitor:      monitor,
		media:        pipeline,
		log:          log,
		user:         user,
		createWindow: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile drives one appointment, identified by its possibly-local
// identifier, and everything referencing it to a fully-synced state.
func (e *Engine) Reconcile(ctx context.Context, id string) (Report, error) {
	var report Report

	if !e.monitor.Online() {
		return report, ErrOffline
	}

	// Step 1: create the pending appointment remotely, then rebind.
	pending, ok, err := e.store.PendingAppointment(ctx, id)
	if err != nil {
		return report, err
	}
	if ok {
		created, err := e.createRemote(ctx, pending)
		if err != nil {
			if remote.IsConnectivity(err) {
				e.monitor.SetOnline(false)
			}
			return report, fmt.Errorf("create appointment %s: %w", id, err)
		}
		if err := e.store.Rebind(ctx, id, created.ID); err != nil {
			// The remote row exists but local records still reference the
			// local id. The next pass re-inserts and the backend accepts
			// the duplicate; a duplicate visit is recoverable, lost local
			// data is not.
			return report, fmt.Errorf("rebind %s -> %s: %w", id, created.ID, err)
		}
		e.log.Info("pending appointment created", "local", id, "remote", created.ID)
		report.AppointmentsCreated++
		id = created.ID
	}

	// Step 2: replay mutations in creation order. Best-effort per item
	// (a rejected change-set stays queued), but a connectivity failure
	// dooms everything behind it, so it aborts the pass.
	mutations, err := e.store.MutationsFor(ctx, id)
	if err != nil {
		return report, err
	}
	for _, mut := range mutations {
		if _, err := e.backend.UpdateAppointment(ctx, mut.AppointmentID, mut.Changes); err != nil {
			if remote.IsConnectivity(err) {
				e.monitor.SetOnline(false)
				return report, fmt.Errorf("replay %s: %w", mut.ID, err)
			}
			report.Failures++
			e.log.Warn("mutation replay failed", "mutation", mut.ID, "action", mut.Action, "err", err)
			continue
		}
		if err := e.store.DeleteMutation(ctx, mut.ID); err != nil {
			return report, fmt.Errorf("prune mutation %s: %w", mut.ID, err)
		}
		report.MutationsApplied++
	}

	// Step 3: upload media, same best-effort semantics.
	stats, err := e.media.UploadFor(ctx, id)
	report.MediaUploaded += stats.Uploaded
	report.MediaSkipped += stats.Skipped
	report.Failures += stats.Failed
	if err != nil {
		return report, err
	}

	return report, nil
}

// ReconcileAll drains every appointment that still has local work
// attached: pending appointments first, in local creation order, then any
// already-remote appointments with queued mutations or media.
func (e *Engine) ReconcileAll(ctx context.Context) (Report, error) {
	var total Report

	ids, err := e.store.QueuedAppointmentIDs(ctx, e.user)
	if err != nil {
		return total, err
	}

	for _, id := range ids {
		report, err := e.Reconcile(ctx, id)
		total.add(report)
		if err != nil {
			if errors.Is(err, ErrOffline) || remote.IsConnectivity(err) {
				return total, err
			}
			total.Failures++
			e.log.Warn("reconcile failed", "appointment", id, "err", err)
		}
	}
	return total, nil
}

// createRemote inserts one pending appointment with bounded exponential
// retry. Connectivity failures retry inside the window; anything else is
// permanent and surfaces immediately.
func (e *Engine) createRemote(ctx context.Context, pending model.Appointment) (model.Appointment, error) {
	operation := func() (model.Appointment, error) {
		created, err := e.backend.InsertAppointment(ctx, pending)
		if err != nil {
			if remote.IsConnectivity(err) {
				return model.Appointment{}, err
			}
			return model.Appointment{}, backoff.Permanent(err)
		}
		return created, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(e.createWindow),
	)
}
