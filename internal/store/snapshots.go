package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agendae/fieldsync/internal/model"
)

// latestKeySuffix is the range-independent cache key suffix. Every
// snapshot save also lands under this key so an exact-range cache miss can
// still fall back to the most recent schedule the user saw.
const latestKeySuffix = "latest"

// SnapshotKey builds the deterministic cache key for a (user, range) pair.
// Ranges are keyed by UTC calendar date so the same range always maps to
// the same row.
func SnapshotKey(user string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", user, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
}

// LatestSnapshotKey builds the fallback key for a user.
func LatestSnapshotKey(user string) string {
	return user + "|" + latestKeySuffix
}

// SaveSnapshot persists a schedule snapshot under both its exact range key
// and the user's "latest" key, and, when the range covers now, refreshes
// the today sub-snapshot. All rows are written in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.ScheduleSnapshot, now time.Time) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	createdAt := snap.CreatedAt.UnixMilli()

	return s.inTx(func(tx *sqlx.Tx) error {
		const upsert = `
			INSERT INTO schedule_snapshots (cache_key, user, payload, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
		`
		if _, err := tx.ExecContext(ctx, upsert, SnapshotKey(snap.User, snap.RangeStart, snap.RangeEnd), snap.User, string(payload), createdAt); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsert, LatestSnapshotKey(snap.User), snap.User, string(payload), createdAt); err != nil {
			return fmt.Errorf("save latest snapshot: %w", err)
		}

		if snap.Covers(now) {
			today := todayView(snap, now)
			todayPayload, err := json.Marshal(today)
			if err != nil {
				return fmt.Errorf("marshal today snapshot: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO today_snapshots (user, payload, created_at)
				VALUES (?, ?, ?)
				ON CONFLICT(user) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
			`, snap.User, string(todayPayload), createdAt); err != nil {
				return fmt.Errorf("save today snapshot: %w", err)
			}
		}

		return nil
	})
}

// todayView narrows a snapshot to the appointments starting on now's
// calendar day. Day bounds come from now's location, matching the SameDay
// membership test, so the range metadata agrees with the contents.
func todayView(snap model.ScheduleSnapshot, now time.Time) model.ScheduleSnapshot {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	today := model.ScheduleSnapshot{
		User:       snap.User,
		RangeStart: day,
		RangeEnd:   day.Add(24*time.Hour - time.Nanosecond),
		Companies:  snap.Companies,
		CreatedAt:  snap.CreatedAt,
	}
	for _, appt := range snap.Appointments {
		if appt.SameDay(now) {
			today.Appointments = append(today.Appointments, appt)
		}
	}
	return today
}

// Snapshot returns the cached snapshot for the exact (user, range) key.
func (s *Store) Snapshot(ctx context.Context, user string, start, end time.Time) (model.ScheduleSnapshot, bool, error) {
	return s.snapshotByKey(ctx, SnapshotKey(user, start, end))
}

// LatestSnapshot returns the most recently saved snapshot for the user,
// regardless of range.
func (s *Store) LatestSnapshot(ctx context.Context, user string) (model.ScheduleSnapshot, bool, error) {
	return s.snapshotByKey(ctx, LatestSnapshotKey(user))
}

func (s *Store) snapshotByKey(ctx context.Context, key string) (model.ScheduleSnapshot, bool, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM schedule_snapshots WHERE cache_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduleSnapshot{}, false, nil
	}
	if err != nil {
		return model.ScheduleSnapshot{}, false, fmt.Errorf("query snapshot: %w", err)
	}

	var snap model.ScheduleSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.ScheduleSnapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// TodaySnapshot returns the current-day sub-snapshot for the user.
func (s *Store) TodaySnapshot(ctx context.Context, user string) (model.ScheduleSnapshot, bool, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM today_snapshots WHERE user = ?`, user)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduleSnapshot{}, false, nil
	}
	if err != nil {
		return model.ScheduleSnapshot{}, false, fmt.Errorf("query today snapshot: %w", err)
	}

	var snap model.ScheduleSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.ScheduleSnapshot{}, false, fmt.Errorf("unmarshal today snapshot: %w", err)
	}
	return snap, true, nil
}

// SaveCompanyDirectory caches the company list for a user verbatim.
func (s *Store) SaveCompanyDirectory(ctx context.Context, user string, companies []model.Company, now time.Time) error {
	payload, err := json.Marshal(companies)
	if err != nil {
		return fmt.Errorf("marshal companies: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO company_directory (user, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
	`, user, string(payload), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("save company directory: %w", err)
	}
	return nil
}

// CompanyDirectory returns the cached company list for a user.
func (s *Store) CompanyDirectory(ctx context.Context, user string) ([]model.Company, bool, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM company_directory WHERE user = ?`, user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query company directory: %w", err)
	}

	var companies []model.Company
	if err := json.Unmarshal([]byte(payload), &companies); err != nil {
		return nil, false, fmt.Errorf("unmarshal companies: %w", err)
	}
	return companies, true, nil
}
