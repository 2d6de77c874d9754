package media

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendae/fieldsync/internal/model"
	"github.com/agendae/fieldsync/internal/store"
	"github.com/agendae/fieldsync/internal/testutil"
)

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *store.Store, *testutil.FakeBackend, *testutil.ManualClock) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	backend := testutil.NewFakeBackend()
	clock := testutil.NewManualClock(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := New(st, backend, log, cfg, WithNow(clock.Now))
	return p, st, backend, clock
}

// opaque payloads skip recompression, so stored sizes stay predictable.
func capture(appointmentID string, n int) Capture {
	return Capture{
		Data:          bytes.Repeat([]byte{0xAB}, n),
		MimeType:      "application/octet-stream",
		AppointmentID: appointmentID,
		Kind:          model.MediaCheckIn,
		ConsultantID:  "carlos",
	}
}

func TestSaveStoresMetadataAndBlob(t *testing.T) {
	p, st, _, _ := newTestPipeline(t, Config{})
	ctx := context.Background()

	saved, err := p.Save(ctx, capture("apt-1", 100))
	require.NoError(t, err)
	assert.Equal(t, int64(100), saved.SizeBytes)
	assert.False(t, saved.Uploaded)

	blob, ok, err := st.MediaBlob(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, blob, 100)
}

func TestItemBudgetEvictsOldestUnuploaded(t *testing.T) {
	p, st, _, clock := newTestPipeline(t, Config{Budget: Budget{MaxItems: 3}})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		saved, err := p.Save(ctx, capture("apt-1", 10))
		require.NoError(t, err)
		ids = append(ids, saved.ID)
		clock.Tick()
	}

	all, err := st.AllMedia(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, m := range all {
		assert.NotEqual(t, ids[0], m.ID, "oldest capture should have been evicted")
	}
}

func TestEvictionPrefersUploaded(t *testing.T) {
	p, st, _, clock := newTestPipeline(t, Config{Budget: Budget{MaxItems: 3}})
	ctx := context.Background()

	first, err := p.Save(ctx, capture("apt-1", 10))
	require.NoError(t, err)
	clock.Tick()
	uploaded, err := p.Save(ctx, capture("apt-1", 10))
	require.NoError(t, err)
	clock.Tick()
	_, err = p.Save(ctx, capture("apt-1", 10))
	require.NoError(t, err)
	clock.Tick()

	require.NoError(t, st.MarkMediaUploaded(ctx, uploaded.ID, "media/carlos/apt-1/x.bin", true))

	_, err = p.Save(ctx, capture("apt-1", 10))
	require.NoError(t, err)

	all, err := st.AllMedia(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, m := range all {
		assert.NotEqual(t, uploaded.ID, m.ID, "uploaded media goes first")
	}

	// The older unuploaded capture survives because evicting the
	// uploaded one was enough.
	_, ok, err := st.Media(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestByteBudgetEviction(t *testing.T) {
	p, st, _, clock := newTestPipeline(t, Config{Budget: Budget{MaxItems: 100, MaxBytes: 150}})
	ctx := context.Background()

	first, err := p.Save(ctx, capture("apt-1", 100))
	require.NoError(t, err)
	clock.Tick()
	second, err := p.Save(ctx, capture("apt-1", 100))
	require.NoError(t, err)

	_, ok, err := st.Media(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, ok, "oldest evicted to fit the byte budget")
	_, ok, err = st.Media(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUploadForSkipsLocalOwner(t *testing.T) {
	p, _, backend, _ := newTestPipeline(t, Config{})
	ctx := context.Background()

	localID := model.NewLocalID()
	_, err := p.Save(ctx, capture(localID, 50))
	require.NoError(t, err)

	stats, err := p.UploadFor(ctx, localID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Uploaded)
	assert.Empty(t, backend.Uploads)
}

func TestUploadFor(t *testing.T) {
	p, st, backend, _ := newTestPipeline(t, Config{})
	ctx := context.Background()

	saved, err := p.Save(ctx, capture("apt-1", 50))
	require.NoError(t, err)

	stats, err := p.UploadFor(ctx, "apt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)

	require.Len(t, backend.Uploads, 1)
	assert.Equal(t, "media", backend.Uploads[0].Bucket)
	assert.True(t, strings.HasPrefix(backend.Uploads[0].Path, "carlos/apt-1/"))
	require.Len(t, backend.MediaRecords, 1)
	assert.Equal(t, "apt-1", backend.MediaRecords[0].AppointmentID)

	got, ok, err := st.Media(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Uploaded)
	assert.NotEmpty(t, got.RemotePath)

	// Blob dropped after upload unless configured otherwise.
	_, ok, err = st.MediaBlob(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadFailureLeavesQueued(t *testing.T) {
	p, st, backend, _ := newTestPipeline(t, Config{})
	ctx := context.Background()

	saved, err := p.Save(ctx, capture("apt-1", 50))
	require.NoError(t, err)

	backend.SetOffline(true)
	stats, err := p.UploadFor(ctx, "apt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	got, ok, err := st.Media(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Uploaded)
}

func TestRecompressOpaquePayload(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, Config{})

	in := []byte("not an image")
	out, mime := p.recompress(in, "application/octet-stream")
	assert.Equal(t, in, out)
	assert.Equal(t, "application/octet-stream", mime)
}

func TestRecompressDownscalesLargeImage(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, Config{MaxLongEdge: 40, JPEGQuality: 80})

	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, mime := p.recompress(buf.Bytes(), "image/png")
	assert.Equal(t, "image/jpeg", mime)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())
	assert.Equal(t, 20, decoded.Bounds().Dy())
}
