package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agendae/fieldsync/internal/model"
)

func unixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

type mediaRow struct {
	ID            string `db:"id"`
	AppointmentID string `db:"appointment_id"`
	Kind          string `db:"kind"`
	ConsultantID  string `db:"consultant_id"`
	MimeType      string `db:"mime_type"`
	SizeBytes     int64  `db:"size_bytes"`
	Uploaded      bool   `db:"uploaded"`
	RemotePath    string `db:"remote_path"`
	CreatedAt     int64  `db:"created_at"`
}

func (r mediaRow) toModel() model.PendingMedia {
	return model.PendingMedia{
		ID:            r.ID,
		AppointmentID: r.AppointmentID,
		Kind:          model.MediaKind(r.Kind),
		ConsultantID:  r.ConsultantID,
		MimeType:      r.MimeType,
		SizeBytes:     r.SizeBytes,
		Uploaded:      r.Uploaded,
		RemotePath:    r.RemotePath,
		CreatedAt:     unixMilli(r.CreatedAt),
	}
}

const mediaColumns = `id, appointment_id, kind, consultant_id, mime_type, size_bytes, uploaded, remote_path, created_at`

// SaveMedia writes a media metadata record and its binary payload in one
// transaction. A metadata row never exists without its blob and vice
// versa until the record is marked uploaded.
func (s *Store) SaveMedia(ctx context.Context, media model.PendingMedia, blob []byte) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_media (`+mediaColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, media.ID, media.AppointmentID, string(media.Kind), media.ConsultantID,
			media.MimeType, media.SizeBytes, media.Uploaded, media.RemotePath,
			media.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("save media metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_media_blobs (id, data) VALUES (?, ?)
		`, media.ID, blob); err != nil {
			return fmt.Errorf("save media blob: %w", err)
		}
		return nil
	})
}

// Media returns the metadata record stored under id.
func (s *Store) Media(ctx context.Context, id string) (model.PendingMedia, bool, error) {
	var row mediaRow
	err := s.db.GetContext(ctx, &row, `SELECT `+mediaColumns+` FROM pending_media WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PendingMedia{}, false, nil
	}
	if err != nil {
		return model.PendingMedia{}, false, fmt.Errorf("query media: %w", err)
	}
	return row.toModel(), true, nil
}

// MediaBlob returns the binary payload stored under id.
func (s *Store) MediaBlob(ctx context.Context, id string) ([]byte, bool, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM pending_media_blobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query media blob: %w", err)
	}
	return data, true, nil
}

// MediaFor returns the not-yet-uploaded media records owned by one
// appointment, oldest first.
func (s *Store) MediaFor(ctx context.Context, appointmentID string) ([]model.PendingMedia, error) {
	var rows []mediaRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+mediaColumns+` FROM pending_media
		WHERE appointment_id = ? AND uploaded = 0
		ORDER BY created_at ASC, id ASC
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("query media for appointment: %w", err)
	}
	return mediaFromRows(rows), nil
}

// AllMedia returns every media metadata record, oldest first.
func (s *Store) AllMedia(ctx context.Context) ([]model.PendingMedia, error) {
	var rows []mediaRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+mediaColumns+` FROM pending_media ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	return mediaFromRows(rows), nil
}

// MediaByUploaded returns media records filtered by uploaded state, oldest
// first. The eviction policy consumes this ordering directly.
func (s *Store) MediaByUploaded(ctx context.Context, uploaded bool) ([]model.PendingMedia, error) {
	var rows []mediaRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+mediaColumns+` FROM pending_media
		WHERE uploaded = ?
		ORDER BY created_at ASC, id ASC
	`, uploaded)
	if err != nil {
		return nil, fmt.Errorf("query media by uploaded: %w", err)
	}
	return mediaFromRows(rows), nil
}

func mediaFromRows(rows []mediaRow) []model.PendingMedia {
	media := make([]model.PendingMedia, 0, len(rows))
	for _, row := range rows {
		media = append(media, row.toModel())
	}
	return media
}

// MediaUsage reports the number of media records and the bytes their
// stored payloads occupy. Uploaded records whose blob was dropped count as
// zero bytes.
func (s *Store) MediaUsage(ctx context.Context) (items int, bytes int64, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(m.id), COALESCE(SUM(LENGTH(b.data)), 0)
		FROM pending_media m
		LEFT JOIN pending_media_blobs b ON b.id = m.id
	`)
	if err := row.Scan(&items, &bytes); err != nil {
		return 0, 0, fmt.Errorf("query media usage: %w", err)
	}
	return items, bytes, nil
}

// MarkMediaUploaded records a confirmed upload: sets the uploaded flag and
// remote path, and drops the blob unless keepBlob is set. Metadata update
// and blob delete share one transaction.
func (s *Store) MarkMediaUploaded(ctx context.Context, id, remotePath string, keepBlob bool) error {
	if remotePath == "" {
		return fmt.Errorf("mark media uploaded: empty remote path for %s", id)
	}
	return s.inTx(func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE pending_media SET uploaded = 1, remote_path = ? WHERE id = ?
		`, remotePath, id)
		if err != nil {
			return fmt.Errorf("mark media uploaded: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("mark media uploaded: no record %s", id)
		}
		if !keepBlob {
			if _, err := tx.ExecContext(ctx, `DELETE FROM pending_media_blobs WHERE id = ?`, id); err != nil {
				return fmt.Errorf("drop media blob: %w", err)
			}
		}
		return nil
	})
}

// DeleteMedia removes a media record and its payload together.
func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_media_blobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete media blob: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_media WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete media metadata: %w", err)
		}
		return nil
	})
}
