package artifact

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStorePutGet(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("mesh bytes")
	require.NoError(t, store.Put(ctx, "scans/abc_input.stl", data))

	got, err := store.Get(ctx, "scans/abc_input.stl")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFSStoreGetMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "scans/missing.stl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreOverwrite(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("one")))
	require.NoError(t, store.Put(ctx, "k", []byte("two")))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(filepath.Join(root, "blobs"))
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
	}{
		{name: "parent traversal", key: "../escape"},
		{name: "nested traversal", key: "scans/../../escape"},
		{name: "absolute path", key: "/etc/escape"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.Put(ctx, tt.key, []byte("x")))

			_, err := store.Get(ctx, tt.key)
			assert.Error(t, err)
		})
	}

	// Nothing landed outside the store root.
	assert.NoFileExists(t, filepath.Join(root, "escape"))
}

func TestFSStoreSigningUnsupported(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.SignUpload(ctx, "k", "application/octet-stream", time.Hour)
	assert.ErrorIs(t, err, ErrSigningUnsupported)

	_, err = store.SignDownload(ctx, "k", time.Hour)
	assert.ErrorIs(t, err, ErrSigningUnsupported)
}

func TestUploadKey(t *testing.T) {
	key := UploadKey("scans", "scan.stl")

	assert.True(t, strings.HasPrefix(key, "scans/"))
	assert.True(t, strings.HasSuffix(key, "_scan.stl"))
	assert.NotContains(t, key, "-")

	// Nonce makes keys unique per call.
	assert.NotEqual(t, key, UploadKey("scans", "scan.stl"))

	// Folder slashes get trimmed.
	assert.True(t, strings.HasPrefix(UploadKey("/scans/", "scan.stl"), "scans/"))
}

func TestOutputKey(t *testing.T) {
	assert.Equal(t, "stl/job-1/prosthetic.stl", OutputKey("stl", "job-1", ProstheticFile))
	assert.Equal(t, "stl/job-1/mold.stl", OutputKey("/stl/", "job-1", MoldFile))
}
