package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/menu-crawler/internal/config"
	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/storage/local"
	"github.com/JakeFAU/menu-crawler/internal/storage/memory"
)

func TestOpenBackends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.StorageConfig{Backend: config.StorageBackendNone})
	require.NoError(t, err)
	require.IsType(t, Discard{}, store)
	require.NoError(t, closeFn())

	store, _, err = Open(ctx, config.StorageConfig{Backend: config.StorageBackendMemory})
	require.NoError(t, err)
	require.IsType(t, &memory.BlobStore{}, store)

	dir := filepath.Join(t.TempDir(), "snaps")
	store, _, err = Open(ctx, config.StorageConfig{Backend: config.StorageBackendLocal, BaseDir: dir})
	require.NoError(t, err)
	require.IsType(t, &local.BlobStore{}, store)

	_, closeFn, err = Open(ctx, config.StorageConfig{Backend: "s3"})
	require.Error(t, err)
	require.NotNil(t, closeFn)
}

func TestDiscardDropsObjects(t *testing.T) {
	t.Parallel()

	uri, err := Discard{}.PutObject(context.Background(), "p", "text/html", strings.NewReader("x"))
	require.NoError(t, err)
	require.Empty(t, uri)
}

func TestSnapshotPath(t *testing.T) {
	t.Parallel()

	got := SnapshotPath("snapshots", "run-7", 42, menu.CollectionWine, "abc123")
	require.Equal(t, "snapshots/run-7/42/wine-abc123.html", got)

	got = SnapshotPath("", "run-7", 1, menu.CollectionMenu, "d")
	require.Equal(t, "run-7/1/menu-d.html", got)
}

func TestMockBlobStore(t *testing.T) {
	t.Parallel()

	m := &MockBlobStore{}
	m.On("PutObject", mock.Anything, "a.html", "text/html", "<p>").Return("memory://a.html", nil).Once()

	uri, err := m.PutObject(context.Background(), "a.html", "text/html", strings.NewReader("<p>"))
	require.NoError(t, err)
	require.Equal(t, "memory://a.html", uri)
	m.AssertExpectations(t)
}
