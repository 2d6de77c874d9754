package remote_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/remote"
)

// fakeServer is a minimal stand-in for the REST row service.
type fakeServer struct {
	*chi.Mux
	appointments map[string]map[string]any
	mediaRecords []remote.MediaRecord
	nextID       int
}

func newFakeServer() *fakeServer {
	s := &fakeServer{
		Mux:          chi.NewRouter(),
		appointments: make(map[string]map[string]any),
	}

	s.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.Get("/api/collections/appointments/records", func(w http.ResponseWriter, r *http.Request) {
		consultant := r.URL.Query().Get("consultant")
		var items []map[string]any
		for _, rec := range s.appointments {
			if rec["consultant"] == consultant || rec["consultor"] == consultant {
				items = append(items, rec)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})

	s.Post("/api/collections/appointments/records", func(w http.ResponseWriter, r *http.Request) {
		var rec map[string]any
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad payload"})
			return
		}
		if id, _ := rec["id"].(string); id != "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "id is server-issued"})
			return
		}
		s.nextID++
		id := fmt.Sprintf("apt-%d", s.nextID)
		rec["id"] = id
		s.appointments[id] = rec
		writeJSON(w, http.StatusOK, rec)
	})

	s.Patch("/api/collections/appointments/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, ok := s.appointments[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "no such record"})
			return
		}
		var changes map[string]any
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad payload"})
			return
		}
		for k, v := range changes {
			rec[k] = v
		}
		writeJSON(w, http.StatusOK, rec)
	})

	s.Get("/api/collections/companies/records", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{
			{"id": "cmp-1", "name": "Padaria Central", "last3MonthsValue": 900.0},
		}})
	})

	s.Post("/api/collections/media/records", func(w http.ResponseWriter, r *http.Request) {
		var rec remote.MediaRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad payload"})
			return
		}
		s.mediaRecords = append(s.mediaRecords, rec)
		writeJSON(w, http.StatusOK, map[string]any{"id": "med-1"})
	})

	s.Post("/api/files/{bucket}/*", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"path": chi.URLParam(r, "bucket") + "/" + chi.URLParam(r, "*"),
		})
	})

	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.Handler) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return remote.NewClient(srv.URL, "test-token", 5*time.Second, log)
}

func TestQueryAppointmentsBothSchemas(t *testing.T) {
	srv := newFakeServer()
	srv.appointments["apt-new"] = map[string]any{
		"id": "apt-new", "consultant": "carlos",
		"companyId": "cmp-1", "companyName": "Padaria Central",
		"startAt": "2025-03-10T09:00:00Z", "endAt": "2025-03-10T10:00:00Z",
		"status": "scheduled", "createdAt": "2025-03-01T00:00:00Z", "updatedAt": "2025-03-01T00:00:00Z",
	}
	srv.appointments["apt-old"] = map[string]any{
		"id": "apt-old", "consultor": "carlos",
		"empresaId": "cmp-2", "empresa": "Armazém do João",
		"inicio": "2025-03-10T11:00:00Z", "fim": "2025-03-10T12:00:00Z",
		"situacao": "em_andamento",
		"checkinEm": "2025-03-10T11:05:00Z", "checkinLat": -23.55, "checkinLng": -46.63,
		"criadoEm": "2024-06-01T00:00:00Z", "atualizadoEm": "2025-03-10T11:05:00Z",
	}

	client := newTestClient(t, srv)
	appointments, err := client.QueryAppointments(context.Background(), remote.Filter{Consultant: "carlos"})
	require.NoError(t, err)
	require.Len(t, appointments, 2)

	byID := make(map[string]model.Appointment)
	for _, a := range appointments {
		byID[a.ID] = a
	}

	assert.Equal(t, model.StatusScheduled, byID["apt-new"].Status)
	assert.Equal(t, "Padaria Central", byID["apt-new"].CompanyName)

	old := byID["apt-old"]
	assert.Equal(t, model.StatusInProgress, old.Status)
	assert.Equal(t, "Armazém do João", old.CompanyName)
	require.NotNil(t, old.CheckInGeo)
	assert.InDelta(t, -23.55, old.CheckInGeo.Lat, 1e-9)
}

func TestInsertAppointmentStripsLocalBookkeeping(t *testing.T) {
	srv := newFakeServer()
	client := newTestClient(t, srv)

	created, err := client.InsertAppointment(context.Background(), model.Appointment{
		ID:             model.NewLocalID(),
		CompanyID:      "cmp-1",
		Consultant:     "carlos",
		StartAt:        time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		EndAt:          time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		Status:         model.StatusScheduled,
		CreatedAt:      time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		PendingSync:    true,
		LocalCreatedAt: 1741593600000,
	})
	require.NoError(t, err)
	assert.False(t, model.IsLocalID(created.ID), "server issues the identifier")
	assert.False(t, created.PendingSync)
	assert.Zero(t, created.LocalCreatedAt)
}

func TestUpdateAppointment(t *testing.T) {
	srv := newFakeServer()
	srv.appointments["apt-1"] = map[string]any{
		"id": "apt-1", "consultant": "carlos",
		"startAt": "2025-03-10T09:00:00Z", "endAt": "2025-03-10T10:00:00Z",
		"status": "scheduled", "createdAt": "2025-03-01T00:00:00Z", "updatedAt": "2025-03-01T00:00:00Z",
	}
	client := newTestClient(t, srv)

	updated, err := client.UpdateAppointment(context.Background(), "apt-1", map[string]any{
		"status":    "in_progress",
		"checkInAt": "2025-03-10T09:05:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, updated.Status)
	require.NotNil(t, updated.CheckInAt)
}

func TestUpdateMissingRecordIsValidation(t *testing.T) {
	client := newTestClient(t, newFakeServer())

	_, err := client.UpdateAppointment(context.Background(), "apt-nope", map[string]any{"status": "done"})
	require.Error(t, err)
	assert.True(t, remote.IsValidation(err))
	assert.False(t, remote.IsConnectivity(err))

	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.Equal(t, "no such record", re.Message)
}

func TestUploadObject(t *testing.T) {
	client := newTestClient(t, newFakeServer())

	path, err := client.UploadObject(context.Background(), "media", "carlos/apt-1/med-1.jpg",
		[]byte{0xFF, 0xD8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "media/carlos/apt-1/med-1.jpg", path)
}

func TestTransportFailureIsConnectivity(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Reserved port with nothing listening.
	client := remote.NewClient("http://127.0.0.1:1", "", time.Second, log)

	err := client.Health(context.Background())
	require.Error(t, err)
	assert.True(t, remote.IsConnectivity(err))
}

func TestGatewayErrorsAreConnectivity(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	client := newTestClient(t, handler)

	err := client.Health(context.Background())
	require.Error(t, err)
	assert.True(t, remote.IsConnectivity(err), "a 502 means the backend never answered")
}

func TestServerErrorIsRemote(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "backend exploded"})
	})
	client := newTestClient(t, handler)

	_, err := client.QueryAppointments(context.Background(), remote.Filter{Consultant: "carlos"})
	require.Error(t, err)
	assert.False(t, remote.IsConnectivity(err))
	assert.False(t, remote.IsValidation(err))
}
