package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "fieldsync.db", cfg.DatabasePath)
	assert.Equal(t, 15*time.Second, cfg.Remote.Timeout.Std())
	assert.Equal(t, 20, cfg.Media.MaxItems)
	assert.Equal(t, int64(50<<20), cfg.Media.MaxBytes)
	assert.Equal(t, 30*time.Second, cfg.Sync.CreateWindow.Std())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_path: /data/field.db
user: carlos
remote:
  base_url: https://backend.example.com
  token: s3cret
  timeout: 5s
media:
  max_items: 10
  keep_uploaded_blobs: true
sync:
  create_window: 1m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/field.db", cfg.DatabasePath)
	assert.Equal(t, "carlos", cfg.User)
	assert.Equal(t, "https://backend.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout.Std())
	assert.Equal(t, 10, cfg.Media.MaxItems)
	assert.True(t, cfg.Media.KeepUploadedBlobs)
	assert.Equal(t, time.Minute, cfg.Sync.CreateWindow.Std())
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(50<<20), cfg.Media.MaxBytes)

	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
user: carlos
remote:
  base_url: https://backend.example.com
`), 0o644))

	t.Setenv("FIELDSYNC_USER", "paula")
	t.Setenv("FIELDSYNC_REMOTE_URL", "https://staging.example.com")
	t.Setenv("FIELDSYNC_REMOTE_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "paula", cfg.User)
	assert.Equal(t, "https://staging.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, "env-token", cfg.Remote.Token)
}

func TestInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  timeout: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "user is required")

	cfg.User = "carlos"
	require.Error(t, cfg.Validate(), "base_url is required")

	cfg.Remote.BaseURL = "https://backend.example.com"
	require.NoError(t, cfg.Validate())
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
