package model

import (
	"time"

	"github.com/google/uuid"
)

// MutationAction names a state transition captured for deferred replay.
type MutationAction string

const (
	ActionCheckIn  MutationAction = "checkIn"
	ActionCheckOut MutationAction = "checkOut"
	ActionAbsence  MutationAction = "absence"
)

// PendingMutation is a queued state transition awaiting replay against the
// remote backend.
//
// Changes holds absolute field values keyed by remote field name, never
// deltas, so reapplying the same mutation against an already-updated
// record is safe.
type PendingMutation struct {
	ID            string         `json:"id" db:"id"`
	User          string         `json:"user" db:"user"`
	AppointmentID string         `json:"appointmentId" db:"appointment_id"`
	Action        MutationAction `json:"action" db:"action"`
	Changes       map[string]any `json:"changes" db:"-"`
	CreatedAt     time.Time      `json:"createdAt" db:"-"`
}

// NewMutationID generates a time-sortable mutation identifier.
func NewMutationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// MediaKind tags what a captured image evidences.
type MediaKind string

const (
	MediaCheckIn  MediaKind = "checkIn"
	MediaCheckOut MediaKind = "checkOut"
	MediaAbsence  MediaKind = "absence"
)

// PendingMedia is the metadata half of a locally stored capture. Its
// binary payload lives in a separate partition under the same identifier;
// the two are written and deleted together.
//
// Invariants: Uploaded=false implies the payload is retrievable;
// Uploaded=true implies RemotePath is non-empty (the payload may then be
// retained or dropped, per configuration).
type PendingMedia struct {
	ID            string    `json:"id" db:"id"`
	AppointmentID string    `json:"apontamentoId" db:"appointment_id"`
	Kind          MediaKind `json:"kind" db:"kind"`
	ConsultantID  string    `json:"consultantId" db:"consultant_id"`
	MimeType      string    `json:"mimeType" db:"mime_type"`
	SizeBytes     int64     `json:"sizeBytes" db:"size_bytes"`
	Uploaded      bool      `json:"uploaded" db:"uploaded"`
	RemotePath    string    `json:"remotePath,omitempty" db:"remote_path"`
	CreatedAt     time.Time `json:"createdAt" db:"-"`
}

// NewMediaID generates a time-sortable media identifier.
func NewMediaID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Uploadable reports whether the record carries everything an upload
// needs: a remote owning-appointment identity, a kind, and a consultant.
// Records failing this are skipped, not failed; they cannot be resolved
// automatically.
func (m PendingMedia) Uploadable() bool {
	return m.AppointmentID != "" && !IsLocalID(m.AppointmentID) &&
		m.Kind != "" && m.ConsultantID != ""
}
