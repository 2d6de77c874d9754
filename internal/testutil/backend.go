package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/remote"
)

// UpdateCall records one UpdateAppointment invocation in arrival order.
type UpdateCall struct {
	ID      string
	Changes map[string]any
}

// UploadCall records one UploadObject invocation in arrival order.
type UploadCall struct {
	Bucket   string
	Path     string
	MimeType string
	Size     int
}

// FakeBackend is an in-memory remote.Backend. Set Offline to make every
// call fail with a connectivity error; use FailUpdateIDs to make updates
// for specific appointments fail remotely while everything else works.
type FakeBackend struct {
	mu sync.Mutex

	Offline       bool
	FailInsert    error
	FailUpdateIDs map[string]error

	Appointments map[string]model.Appointment
	Companies    []model.Company

	nextID       int
	Inserted     []model.Appointment
	Updates      []UpdateCall
	Uploads      []UploadCall
	MediaRecords []remote.MediaRecord
}

// NewFakeBackend creates an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Appointments:  make(map[string]model.Appointment),
		FailUpdateIDs: make(map[string]error),
	}
}

// SetOffline flips the connectivity switch.
func (f *FakeBackend) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Offline = offline
}

func connectivityErr(op string) error {
	return &remote.Error{Kind: remote.KindConnectivity, Op: op, Err: errors.New("dial tcp: connection refused")}
}

func (f *FakeBackend) QueryAppointments(_ context.Context, filter remote.Filter) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return nil, connectivityErr("query appointments")
	}

	var out []model.Appointment
	for _, appt := range f.Appointments {
		if appt.Consultant != filter.Consultant {
			continue
		}
		if !filter.From.IsZero() && appt.StartAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && appt.StartAt.After(filter.To) {
			continue
		}
		out = append(out, appt)
	}
	return out, nil
}

func (f *FakeBackend) InsertAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return model.Appointment{}, connectivityErr("insert appointment")
	}
	if f.FailInsert != nil {
		return model.Appointment{}, f.FailInsert
	}

	f.nextID++
	appt.ID = fmt.Sprintf("apt-%d", f.nextID)
	appt.PendingSync = false
	appt.LocalCreatedAt = 0
	f.Appointments[appt.ID] = appt
	f.Inserted = append(f.Inserted, appt)
	return appt, nil
}

func (f *FakeBackend) UpdateAppointment(_ context.Context, id string, changes map[string]any) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return model.Appointment{}, connectivityErr("update appointment")
	}
	if err, ok := f.FailUpdateIDs[id]; ok {
		return model.Appointment{}, err
	}

	appt, ok := f.Appointments[id]
	if !ok {
		return model.Appointment{}, &remote.Error{Kind: remote.KindValidation, Op: "update appointment", Status: 404, Message: "no such record"}
	}

	merged, err := mergeChanges(appt, changes)
	if err != nil {
		return model.Appointment{}, err
	}
	f.Appointments[id] = merged
	f.Updates = append(f.Updates, UpdateCall{ID: id, Changes: changes})
	return merged, nil
}

// mergeChanges applies an absolute-valued change-set the way the row
// service does: overlay by field name, then decode the result. Applying
// the same change-set twice converges, which is exactly the idempotency
// the replay path depends on.
func mergeChanges(appt model.Appointment, changes map[string]any) (model.Appointment, error) {
	raw, err := json.Marshal(appt)
	if err != nil {
		return model.Appointment{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.Appointment{}, err
	}
	for k, v := range changes {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return model.Appointment{}, err
	}
	var out model.Appointment
	if err := json.Unmarshal(merged, &out); err != nil {
		return model.Appointment{}, &remote.Error{Kind: remote.KindValidation, Op: "update appointment", Status: 400, Message: err.Error()}
	}
	return out, nil
}

func (f *FakeBackend) QueryCompanies(_ context.Context, consultant string) ([]model.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return nil, connectivityErr("query companies")
	}
	return append([]model.Company(nil), f.Companies...), nil
}

func (f *FakeBackend) UploadObject(_ context.Context, bucket, path string, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return "", connectivityErr("upload object")
	}
	f.Uploads = append(f.Uploads, UploadCall{Bucket: bucket, Path: path, MimeType: mimeType, Size: len(data)})
	return bucket + "/" + path, nil
}

func (f *FakeBackend) InsertMediaRecord(_ context.Context, rec remote.MediaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return connectivityErr("insert media record")
	}
	f.MediaRecords = append(f.MediaRecords, rec)
	return nil
}

func (f *FakeBackend) Health(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Offline {
		return connectivityErr("health")
	}
	return nil
}

var _ remote.Backend = (*FakeBackend)(nil)
