// Package storage selects the snapshot backend and names snapshot objects.
//
// Snapshots are the raw rendered listing pages kept for debugging parser
// regressions. They are optional: the "none" backend discards them.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/JakeFAU/menu-crawler/internal/config"
	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/storage/gcs"
	"github.com/JakeFAU/menu-crawler/internal/storage/local"
	"github.com/JakeFAU/menu-crawler/internal/storage/memory"
)

// Discard is a BlobStore that drops every object.
type Discard struct{}

// PutObject drains nothing and returns an empty URI.
func (Discard) PutObject(_ context.Context, _ string, _ string, _ io.Reader) (string, error) {
	return "", nil
}

// Open builds the BlobStore named by cfg.Backend. The returned close func is
// never nil.
func Open(ctx context.Context, cfg config.StorageConfig) (menu.BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", config.StorageBackendNone:
		return Discard{}, noop, nil
	case config.StorageBackendMemory:
		return memory.NewBlobStore(), noop, nil
	case config.StorageBackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local snapshot store: %w", err)
		}
		return store, noop, nil
	case config.StorageBackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, noop, fmt.Errorf("open gcs snapshot store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// SnapshotPath names a listing snapshot:
// <prefix>/<run_id>/<restaurant_id>/<collection>-<digest>.html.
func SnapshotPath(prefix, runID string, restaurantID int64, collection menu.Collection, digest string) string {
	name := string(collection) + "-" + digest + ".html"
	return path.Join(prefix, runID, strconv.FormatInt(restaurantID, 10), name)
}
