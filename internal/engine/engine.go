package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/netmon"
	"github.com/agendae/fieldsync/internal/remote"
	"github.com/agendae/fieldsync/internal/store"
)

// ErrBusy means the appointment already has an operation in flight.
var ErrBusy = errors.New("appointment busy")

// ErrNotFound means the appointment is not in the loaded schedule.
var ErrNotFound = errors.New("appointment not found")

// Engine orchestrates schedule loading, optimistic state transitions, and
// offline appointment creation for one authenticated user.
type Engine struct {
	store   *store.Store
	backend remote.Backend
	monitor *netmon.Monitor
	log     *slog.Logger
	user    string
	now     func() time.Time

	busy *busySet

	// mu guards the in-memory session snapshot. Store and network calls
	// never run under it.
	mu       sync.Mutex
	snapshot model.ScheduleSnapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the engine's clock. Tests use this for deterministic
// localCreatedAt values and snapshot timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine for one user. The user identifier comes from the
// identity provider and keys every local cache partition.
func New(st *store.Store, backend remote.Backend, monitor *netmon.Monitor, user string, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		backend: backend,
		monitor: monitor,
		log:     log,
		user:    user,
		now:     time.Now,
		busy:    newBusySet(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadSchedule fetches the schedule for [start, end], preferring the
// remote backend and falling back to the cached snapshot for the exact
// range, then the user's latest snapshot, then an empty schedule. Pending
// appointments inside the range are always overlaid so offline-created
// visits are visible without waiting for sync.
func (e *Engine) LoadSchedule(ctx context.Context, start, end time.Time) (model.ScheduleSnapshot, error) {
	if e.monitor.Online() {
		snap, err := e.loadRemote(ctx, start, end)
		if err == nil {
			return snap, nil
		}
		if !remote.IsConnectivity(err) {
			return model.ScheduleSnapshot{}, err
		}
		e.monitor.SetOnline(false)
		e.log.Warn("schedule fetch failed, using cache", "err", err)
	}
	return e.loadCached(ctx, start, end)
}

func (e *Engine) loadRemote(ctx context.Context, start, end time.Time) (model.ScheduleSnapshot, error) {
	appointments, err := e.backend.QueryAppointments(ctx, remote.Filter{
		Consultant: e.user,
		From:       start,
		To:         end,
	})
	if err != nil {
		return model.ScheduleSnapshot{}, err
	}
	companies, err := e.backend.QueryCompanies(ctx, e.user)
	if err != nil {
		return model.ScheduleSnapshot{}, err
	}
	model.SortCompanies(companies)

	snap := model.ScheduleSnapshot{
		User:         e.user,
		RangeStart:   start,
		RangeEnd:     end,
		Appointments: appointments,
		Companies:    companies,
		CreatedAt:    e.now(),
	}
	if err := e.overlayPending(ctx, &snap); err != nil {
		return model.ScheduleSnapshot{}, err
	}
	e.preserveOptimistic(ctx, &snap)

	if err := e.store.SaveSnapshot(ctx, snap, e.now()); err != nil {
		return model.ScheduleSnapshot{}, fmt.Errorf("cache schedule: %w", err)
	}
	if err := e.store.SaveCompanyDirectory(ctx, e.user, companies, e.now()); err != nil {
		return model.ScheduleSnapshot{}, fmt.Errorf("cache companies: %w", err)
	}

	e.setSession(snap)
	return snap, nil
}

func (e *Engine) loadCached(ctx context.Context, start, end time.Time) (model.ScheduleSnapshot, error) {
	snap, ok, err := e.store.Snapshot(ctx, e.user, start, end)
	if err != nil {
		return model.ScheduleSnapshot{}, err
	}
	if !ok {
		snap, ok, err = e.store.LatestSnapshot(ctx, e.user)
		if err != nil {
			return model.ScheduleSnapshot{}, err
		}
	}
	if !ok {
		snap = model.ScheduleSnapshot{
			User:       e.user,
			RangeStart: start,
			RangeEnd:   end,
			CreatedAt:  e.now(),
		}
	}
	if err := e.overlayPending(ctx, &snap); err != nil {
		return model.ScheduleSnapshot{}, err
	}

	e.setSession(snap)
	return snap, nil
}

// overlayPending folds locally fabricated appointments into a snapshot.
// The pending payload wins over any cached copy: it carries every offline
// transition applied since fabrication.
func (e *Engine) overlayPending(ctx context.Context, snap *model.ScheduleSnapshot) error {
	pending, err := e.store.PendingAppointments(ctx, e.user)
	if err != nil {
		return fmt.Errorf("overlay pending appointments: %w", err)
	}
	for _, appt := range pending {
		if snap.Covers(appt.StartAt) {
			snap.Upsert(appt)
		}
	}
	return nil
}

// preserveOptimistic keeps not-yet-replayed local transitions visible
// after a remote refresh: a fetched appointment that still has queued
// mutations is replaced by its cached optimistic copy, so the UI never
// appears to "undo" a check-in that is merely waiting for sync.
func (e *Engine) preserveOptimistic(ctx context.Context, snap *model.ScheduleSnapshot) {
	cached, ok, err := e.store.LatestSnapshot(ctx, e.user)
	if err != nil || !ok {
		return
	}
	for i := range snap.Appointments {
		id := snap.Appointments[i].ID
		mutations, err := e.store.MutationsFor(ctx, id)
		if err != nil || len(mutations) == 0 {
			continue
		}
		for _, c := range cached.Appointments {
			if c.ID == id {
				snap.Appointments[i] = c
				break
			}
		}
	}
}

func (e *Engine) setSession(snap model.ScheduleSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = snap
}

// Schedule returns a copy of the in-memory session snapshot.
func (e *Engine) Schedule() model.ScheduleSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.snapshot
	snap.Appointments = append([]model.Appointment(nil), e.snapshot.Appointments...)
	return snap
}

// Appointment returns the in-memory state of one appointment.
func (e *Engine) Appointment(id string) (model.Appointment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, appt := range e.snapshot.Appointments {
		if appt.ID == id {
			return appt, true
		}
	}
	return model.Appointment{}, false
}

// Busy reports whether an operation is in flight for the appointment.
func (e *Engine) Busy(id string) bool {
	return e.busy.held(id)
}

// Companies returns the company directory: fetched and re-cached when
// online, served from the cached copy otherwise. Always sorted by the
// last-3-months aggregate.
func (e *Engine) Companies(ctx context.Context) ([]model.Company, error) {
	if e.monitor.Online() {
		companies, err := e.backend.QueryCompanies(ctx, e.user)
		if err == nil {
			model.SortCompanies(companies)
			if err := e.store.SaveCompanyDirectory(ctx, e.user, companies, e.now()); err != nil {
				return nil, fmt.Errorf("cache companies: %w", err)
			}
			return companies, nil
		}
		if !remote.IsConnectivity(err) {
			return nil, err
		}
		e.monitor.SetOnline(false)
	}

	companies, _, err := e.store.CompanyDirectory(ctx, e.user)
	if err != nil {
		return nil, err
	}
	model.SortCompanies(companies)
	return companies, nil
}

// mergeAppointment updates session state with appt and persists the
// resulting snapshot. In-memory state is updated first: a store failure
// surfaces to the caller, but the optimistic state survives for the
// session.
func (e *Engine) mergeAppointment(ctx context.Context, appt model.Appointment) error {
	e.mu.Lock()
	e.snapshot.Upsert(appt)
	snap := e.snapshot
	// Deep-copy before unlocking: a concurrent transition on another
	// appointment writes the shared backing array in place.
	snap.Appointments = append([]model.Appointment(nil), e.snapshot.Appointments...)
	e.mu.Unlock()

	if err := e.store.SaveSnapshot(ctx, snap, e.now()); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}
