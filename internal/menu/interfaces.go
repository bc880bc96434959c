package menu

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a page over plain HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Renderer returns the DOM of a JavaScript-rendered page after pagination settles.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Store persists crawl output and the run ledger.
type Store interface {
	UpsertRestaurants(ctx context.Context, restaurants []Restaurant) (int, error)
	UpsertCatalogItems(ctx context.Context, items []CatalogItem, collection Collection) (int, error)
	RecordRunStart(ctx context.Context, run RunSummary) error
	RecordRunFinish(ctx context.Context, run RunSummary) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests for snapshot names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and order IDs.
type IDGenerator interface {
	NewID() (string, error)
}
