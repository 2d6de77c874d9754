package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/agendae/fieldsync/internal/model"
)

// PutPendingAppointment stores (or refreshes) a locally fabricated
// appointment awaiting remote creation. The record is keyed by its local
// identifier; the full appointment travels as a JSON payload so later
// offline transitions can be folded into it.
func (s *Store) PutPendingAppointment(ctx context.Context, appt model.Appointment) error {
	payload, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("marshal pending appointment: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_appointments (id, user, payload, local_created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, appt.ID, appt.Consultant, string(payload), appt.LocalCreatedAt)
	if err != nil {
		return fmt.Errorf("put pending appointment: %w", err)
	}
	return nil
}

// PendingAppointment returns the pending appointment stored under id.
func (s *Store) PendingAppointment(ctx context.Context, id string) (model.Appointment, bool, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM pending_appointments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, fmt.Errorf("query pending appointment: %w", err)
	}

	var appt model.Appointment
	if err := json.Unmarshal([]byte(payload), &appt); err != nil {
		return model.Appointment{}, false, fmt.Errorf("unmarshal pending appointment: %w", err)
	}
	return appt, true, nil
}

// PendingAppointments returns every pending appointment for a user in
// local creation order.
func (s *Store) PendingAppointments(ctx context.Context, user string) ([]model.Appointment, error) {
	var payloads []string
	err := s.db.SelectContext(ctx, &payloads, `
		SELECT payload FROM pending_appointments
		WHERE user = ?
		ORDER BY local_created_at ASC, id ASC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("query pending appointments: %w", err)
	}

	appointments := make([]model.Appointment, 0, len(payloads))
	for _, payload := range payloads {
		var appt model.Appointment
		if err := json.Unmarshal([]byte(payload), &appt); err != nil {
			return nil, fmt.Errorf("unmarshal pending appointment: %w", err)
		}
		appointments = append(appointments, appt)
	}
	return appointments, nil
}

// EnqueueMutation appends a state transition to the replay queue.
func (s *Store) EnqueueMutation(ctx context.Context, mut model.PendingMutation) error {
	changes, err := json.Marshal(mut.Changes)
	if err != nil {
		return fmt.Errorf("marshal mutation changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_mutations (id, user, appointment_id, action, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, mut.ID, mut.User, mut.AppointmentID, string(mut.Action), string(changes), mut.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue mutation: %w", err)
	}
	return nil
}

type mutationRow struct {
	ID            string `db:"id"`
	User          string `db:"user"`
	AppointmentID string `db:"appointment_id"`
	Action        string `db:"action"`
	Changes       string `db:"changes"`
	CreatedAt     int64  `db:"created_at"`
}

func (r mutationRow) toModel() (model.PendingMutation, error) {
	var changes map[string]any
	if err := json.Unmarshal([]byte(r.Changes), &changes); err != nil {
		return model.PendingMutation{}, fmt.Errorf("unmarshal mutation changes: %w", err)
	}
	return model.PendingMutation{
		ID:            r.ID,
		User:          r.User,
		AppointmentID: r.AppointmentID,
		Action:        model.MutationAction(r.Action),
		Changes:       changes,
		CreatedAt:     unixMilli(r.CreatedAt),
	}, nil
}

// MutationsFor returns the queued mutations targeting one appointment, in
// creation order. Replay order matters: a check-out change-set must not
// land before its check-in.
func (s *Store) MutationsFor(ctx context.Context, appointmentID string) ([]model.PendingMutation, error) {
	var rows []mutationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user, appointment_id, action, changes, created_at
		FROM pending_mutations
		WHERE appointment_id = ?
		ORDER BY created_at ASC, id ASC
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	return mutationsFromRows(rows)
}

// Mutations returns every queued mutation for a user in creation order.
func (s *Store) Mutations(ctx context.Context, user string) ([]model.PendingMutation, error) {
	var rows []mutationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user, appointment_id, action, changes, created_at
		FROM pending_mutations
		WHERE user = ?
		ORDER BY created_at ASC, id ASC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	return mutationsFromRows(rows)
}

func mutationsFromRows(rows []mutationRow) ([]model.PendingMutation, error) {
	mutations := make([]model.PendingMutation, 0, len(rows))
	for _, row := range rows {
		mut, err := row.toModel()
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, mut)
	}
	return mutations, nil
}

// DeleteMutation removes one replayed mutation from the queue. Only call
// after the remote backend confirmed the update.
func (s *Store) DeleteMutation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete mutation: %w", err)
	}
	return nil
}

// Rebind atomically repoints every pending mutation, pending media record
// and cached snapshot from oldID to newID and deletes the pending
// appointment stored under oldID. This is the correctness-critical step
// of reconciliation:
// after it commits, zero local records reference oldID; if it fails,
// everything still references oldID and reconciliation can be retried.
func (s *Store) Rebind(ctx context.Context, oldID, newID string) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE pending_mutations SET appointment_id = ? WHERE appointment_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("rebind mutations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE pending_media SET appointment_id = ? WHERE appointment_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("rebind media: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_appointments WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("delete pending appointment: %w", err)
		}
		if err := rebindSnapshots(ctx, tx, `schedule_snapshots`, `cache_key`, oldID, newID); err != nil {
			return err
		}
		if err := rebindSnapshots(ctx, tx, `today_snapshots`, `user`, oldID, newID); err != nil {
			return err
		}
		return nil
	})
}

// rebindSnapshots rewrites cached snapshot payloads still referencing
// oldID. Payloads are JSON, so the LIKE is only a prefilter; the decode
// does the real matching.
func rebindSnapshots(ctx context.Context, tx *sqlx.Tx, table, keyColumn, oldID, newID string) error {
	type row struct {
		Key     string `db:"k"`
		Payload string `db:"payload"`
	}
	var rows []row
	err := tx.SelectContext(ctx, &rows,
		`SELECT `+keyColumn+` AS k, payload FROM `+table+` WHERE payload LIKE ?`,
		"%"+oldID+"%")
	if err != nil {
		return fmt.Errorf("query %s for rebind: %w", table, err)
	}
	for _, r := range rows {
		var snap model.ScheduleSnapshot
		if err := json.Unmarshal([]byte(r.Payload), &snap); err != nil {
			return fmt.Errorf("unmarshal %s %s: %w", table, r.Key, err)
		}
		snap.Rebind(oldID, newID)
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", table, r.Key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET payload = ? WHERE `+keyColumn+` = ?`,
			string(payload), r.Key); err != nil {
			return fmt.Errorf("rebind %s %s: %w", table, r.Key, err)
		}
	}
	return nil
}

// QueuedAppointmentIDs returns every appointment identifier that still has
// local work attached: a pending appointment, queued mutations, or
// not-yet-uploaded media. Pending appointments come first in local
// creation order so reconciliation creates them before replaying any
// already-remote queues; the remainder is sorted for determinism.
func (s *Store) QueuedAppointmentIDs(ctx context.Context, user string) ([]string, error) {
	var pending []string
	err := s.db.SelectContext(ctx, &pending, `
		SELECT id FROM pending_appointments WHERE user = ?
		ORDER BY local_created_at ASC, id ASC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("query queued appointments: %w", err)
	}

	var others []string
	err = s.db.SelectContext(ctx, &others, `
		SELECT DISTINCT appointment_id FROM pending_mutations WHERE user = ?
		UNION
		SELECT DISTINCT appointment_id FROM pending_media WHERE uploaded = 0 AND consultant_id = ?
	`, user, user)
	if err != nil {
		return nil, fmt.Errorf("query queued mutation targets: %w", err)
	}

	seen := make(map[string]bool, len(pending))
	for _, id := range pending {
		seen[id] = true
	}
	rest := others[:0]
	for _, id := range others {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(pending, rest...), nil
}
