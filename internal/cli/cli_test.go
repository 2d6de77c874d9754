package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/reconcile"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad config")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	wrapped := WrapExitError(ExitFailure, "sync", assert.AnError)
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, assert.AnError)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"status", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	db := filepath.Join(t.TempDir(), "fieldsync.db")
	t.Setenv("FIELDSYNC_REMOTE_URL", srv.URL)

	out := new(bytes.Buffer)
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"status", "--db", db, "--user", "carlos", "--format", "json"})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var status statusData
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "online", status.Online)
	assert.Zero(t, status.PendingAppointments)
	assert.Zero(t, status.PendingMutations)
	assert.Zero(t, status.PendingMedia)
}

func TestRenderReportGolden(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "report", []byte(renderReport(reconcile.Report{
		AppointmentsCreated: 1,
		MutationsApplied:    2,
		MediaUploaded:       2,
	})))
	g.Assert(t, "report_failures", []byte(renderReport(reconcile.Report{
		MutationsApplied: 1,
		MediaSkipped:     1,
		Failures:         2,
	})))
}

func TestRenderStatusGolden(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "status", []byte(renderStatus(statusData{
		Online:              "offline",
		PendingAppointments: 1,
		PendingMutations:    2,
		PendingMedia:        3,
		MediaBytes:          2621440,
	})))
}

func TestRenderPendingGolden(t *testing.T) {
	created := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	entries := []pendingEntry{
		{
			AppointmentID: "local-0195f2c0-0000-7000-8000-000000000001",
			LocalOnly:     true,
			Mutations: []model.PendingMutation{
				{Action: model.ActionCheckIn, CreatedAt: created},
				{Action: model.ActionCheckOut, CreatedAt: created.Add(2 * time.Hour)},
			},
			Media: []model.PendingMedia{
				{ID: "med-1", Kind: model.MediaCheckIn},
				{ID: "med-2", Kind: model.MediaCheckOut, Uploaded: true},
			},
		},
		{AppointmentID: "apt-42"},
	}

	g := goldie.New(t)
	g.Assert(t, "pending", []byte(renderPending(entries)))
	g.Assert(t, "pending_empty", []byte(renderPending(nil)))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "2.0 KiB", formatBytes(2048))
	assert.Equal(t, "50.0 MiB", formatBytes(50<<20))
}
