// Package remote defines the remote backend collaborator: a row-oriented
// service exposing read/query and insert/update over named record
// collections, plus a binary object store for media.
//
// The engine treats the backend as unreliable by construction. Every error
// it returns is classified (see errors.go) so callers can distinguish "the
// network was down, queue it" from "the backend rejected this data,
// surface it".
package remote

import (
	"context"
	"time"

	"github.com/agendae/fieldsync/internal/model"
)

// Filter narrows an appointment query to one consultant and date range.
type Filter struct {
	Consultant string
	From       time.Time
	To         time.Time
}

// MediaRecord is the metadata row associating an uploaded object with its
// owning appointment.
type MediaRecord struct {
	AppointmentID string `json:"apontamentoId"`
	Kind          string `json:"kind"`
	ConsultantID  string `json:"consultantId"`
	Path          string `json:"path"`
	MimeType      string `json:"mimeType"`
	SizeBytes     int64  `json:"sizeBytes"`
}

// Backend is the remote row service. Insert and update return the
// canonical stored record so the caller can merge remote-derived fields
// (issued identifiers, server timestamps) back into local state.
type Backend interface {
	QueryAppointments(ctx context.Context, filter Filter) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, changes map[string]any) (model.Appointment, error)
	QueryCompanies(ctx context.Context, consultant string) ([]model.Company, error)

	// UploadObject stores a binary payload under collection-qualified path
	// and returns the remote path of the stored object.
	UploadObject(ctx context.Context, bucket, path string, data []byte, mimeType string) (string, error)
	InsertMediaRecord(ctx context.Context, rec MediaRecord) error

	// Health probes reachability. Used by the network status monitor only;
	// every other call still handles failure itself.
	Health(ctx context.Context) error
}
