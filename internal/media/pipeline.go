// Package media implements the capture intake and deferred upload
// pipeline: captured images are recompressed, stored locally tagged with
// their owning appointment, kept within a storage budget, and uploaded
// once the owning appointment has a remote identity.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/remote"
	"github.com/agendae/fieldsync/internal/store"
)

// Budget bounds the pending-media partition.
type Budget struct {
	MaxItems int
	MaxBytes int64
}

// DefaultBudget is 20 items / 50 MiB, matching the app's historical
// defaults.
var DefaultBudget = Budget{MaxItems: 20, MaxBytes: 50 << 20}

// Config tunes the pipeline.
type Config struct {
	Budget            Budget
	KeepUploadedBlobs bool
	MaxLongEdge       int // pixels; captures larger than this are downscaled
	JPEGQuality       int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Budget:      DefaultBudget,
		MaxLongEdge: 1600,
		JPEGQuality: 80,
	}
}

// Capture is an opaque payload from the camera layer plus the tags that
// tie it to an appointment.
type Capture struct {
	Data          []byte
	MimeType      string
	AppointmentID string
	Kind          model.MediaKind
	ConsultantID  string
}

// UploadStats summarizes one upload pass.
type UploadStats struct {
	Uploaded int
	Skipped  int
	Failed   int
}

// Pipeline owns the pending-media partition lifecycle.
type Pipeline struct {
	store   *store.Store
	backend remote.Backend
	log     *slog.Logger
	cfg     Config
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNow overrides the pipeline clock for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline. Zero-valued config fields fall back to the
// defaults.
func New(st *store.Store, backend remote.Backend, log *slog.Logger, cfg Config, opts ...Option) *Pipeline {
	if cfg.Budget.MaxItems <= 0 {
		cfg.Budget.MaxItems = DefaultBudget.MaxItems
	}
	if cfg.Budget.MaxBytes <= 0 {
		cfg.Budget.MaxBytes = DefaultBudget.MaxBytes
	}
	if cfg.MaxLongEdge <= 0 {
		cfg.MaxLongEdge = 1600
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	p := &Pipeline{
		store:   st,
		backend: backend,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save recompresses a capture, writes its metadata and payload in one
// transaction, and then enforces the storage budget.
func (p *Pipeline) Save(ctx context.Context, capture Capture) (model.PendingMedia, error) {
	data, mimeType := p.recompress(capture.Data, capture.MimeType)

	media := model.PendingMedia{
		ID:            model.NewMediaID(),
		AppointmentID: capture.AppointmentID,
		Kind:          capture.Kind,
		ConsultantID:  capture.ConsultantID,
		MimeType:      mimeType,
		SizeBytes:     int64(len(data)),
		CreatedAt:     p.now(),
	}
	if err := p.store.SaveMedia(ctx, media, data); err != nil {
		return model.PendingMedia{}, fmt.Errorf("save capture: %w", err)
	}

	if err := p.EnforceBudget(ctx); err != nil {
		// The capture is stored; budget pressure is not its problem.
		p.log.Warn("media budget enforcement failed", "err", err)
	}
	return media, nil
}

// EnforceBudget deletes media until the partition fits the budget.
// Already-uploaded items go first, oldest first, since they have a
// durable remote copy. Unuploaded items are only removed if the budget is still
// exceeded after every uploaded item is gone, and each such loss is
// logged loudly.
func (p *Pipeline) EnforceBudget(ctx context.Context) error {
	over, err := p.overBudget(ctx)
	if err != nil || !over {
		return err
	}

	uploaded, err := p.store.MediaByUploaded(ctx, true)
	if err != nil {
		return err
	}
	for _, m := range uploaded {
		if err := p.store.DeleteMedia(ctx, m.ID); err != nil {
			return err
		}
		p.log.Debug("evicted uploaded media", "id", m.ID)
		if over, err = p.overBudget(ctx); err != nil || !over {
			return err
		}
	}

	unuploaded, err := p.store.MediaByUploaded(ctx, false)
	if err != nil {
		return err
	}
	for _, m := range unuploaded {
		if err := p.store.DeleteMedia(ctx, m.ID); err != nil {
			return err
		}
		p.log.Warn("evicted unuploaded media, evidence lost",
			"id", m.ID, "appointment", m.AppointmentID, "kind", m.Kind)
		if over, err = p.overBudget(ctx); err != nil || !over {
			return err
		}
	}
	return nil
}

func (p *Pipeline) overBudget(ctx context.Context) (bool, error) {
	items, bytes, err := p.store.MediaUsage(ctx)
	if err != nil {
		return false, err
	}
	return items > p.cfg.Budget.MaxItems || bytes > p.cfg.Budget.MaxBytes, nil
}

// UploadFor uploads every not-yet-uploaded media record owned by the
// appointment, oldest first, best-effort. Records missing a remote
// owning identity, kind, or consultant are skipped rather than failed,
// since they cannot be resolved automatically.
func (p *Pipeline) UploadFor(ctx context.Context, appointmentID string) (UploadStats, error) {
	var stats UploadStats

	records, err := p.store.MediaFor(ctx, appointmentID)
	if err != nil {
		return stats, err
	}

	for _, m := range records {
		if !m.Uploadable() {
			stats.Skipped++
			p.log.Info("skipping unresolvable media",
				"id", m.ID, "appointment", m.AppointmentID, "kind", m.Kind, "consultant", m.ConsultantID)
			continue
		}

		blob, ok, err := p.store.MediaBlob(ctx, m.ID)
		if err != nil {
			return stats, err
		}
		if !ok {
			stats.Failed++
			p.log.Error("unuploaded media has no payload", "id", m.ID)
			continue
		}

		path := objectPath(m)
		remotePath, err := p.backend.UploadObject(ctx, "media", path, blob, m.MimeType)
		if err != nil {
			stats.Failed++
			p.log.Warn("media upload failed", "id", m.ID, "err", err)
			continue
		}
		if err := p.backend.InsertMediaRecord(ctx, remote.MediaRecord{
			AppointmentID: m.AppointmentID,
			Kind:          string(m.Kind),
			ConsultantID:  m.ConsultantID,
			Path:          remotePath,
			MimeType:      m.MimeType,
			SizeBytes:     m.SizeBytes,
		}); err != nil {
			// Object stored but not associated; leave the record queued so
			// the next pass re-uploads. Uploads are keyed by media ID, so
			// the retry overwrites the same object.
			stats.Failed++
			p.log.Warn("media record insert failed", "id", m.ID, "err", err)
			continue
		}

		if err := p.store.MarkMediaUploaded(ctx, m.ID, remotePath, p.cfg.KeepUploadedBlobs); err != nil {
			return stats, fmt.Errorf("mark media uploaded: %w", err)
		}
		stats.Uploaded++
	}
	return stats, nil
}

func objectPath(m model.PendingMedia) string {
	return fmt.Sprintf("%s/%s/%s%s", m.ConsultantID, m.AppointmentID, m.ID, extension(m.MimeType))
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}
