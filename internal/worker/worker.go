// Package worker runs one ingestion pass: refresh the restaurant directory,
// then crawl each restaurant's menu and wine list and upsert the results.
//
// Restaurants are processed one at a time. Item pages of a single catalog are
// fetched concurrently; the fetcher's shared semaphore bounds the fan-out.
// A failure or panic inside one restaurant is logged and the pass moves on.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/menu-crawler/internal/catalog"
	"github.com/JakeFAU/menu-crawler/internal/logging"
	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/metrics"
	"github.com/JakeFAU/menu-crawler/internal/storage"
)

// Directory loads the current set of restaurants.
type Directory interface {
	Refresh(ctx context.Context) ([]menu.Restaurant, error)
}

// ItemParser turns one item page into a catalog record.
type ItemParser interface {
	ParseItem(ctx context.Context, url, category string, categoryID int, restaurantID int64) (menu.CatalogItem, bool)
}

// Config controls Worker behavior.
type Config struct {
	BaseURL        string
	SnapshotPrefix string
	ContentType    string
	Topic          string
}

// Deps are the collaborators a Worker drives. Blobs and Publisher may be nil.
type Deps struct {
	Directory Directory
	Renderer  menu.Renderer
	Items     ItemParser
	Store     menu.Store
	Blobs     menu.BlobStore
	Publisher menu.Publisher
	Hasher    menu.Hasher
	Clock     menu.Clock
	IDs       menu.IDGenerator
}

// Worker executes ingestion runs.
type Worker struct {
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	current atomic.Pointer[Run]
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Worker, error) {
	switch {
	case deps.Directory == nil:
		return nil, errors.New("directory is required")
	case deps.Renderer == nil:
		return nil, errors.New("renderer is required")
	case deps.Items == nil:
		return nil, errors.New("item parser is required")
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if deps.Blobs == nil {
		deps.Blobs = storage.Discard{}
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Worker{deps: deps, cfg: cfg, logger: logging.OrNop(logger).Named("worker")}, nil
}

// Run executes one full ingestion pass and returns its summary. The returned
// error is non-nil only when the directory could not be loaded or ctx ended.
func (w *Worker) Run(ctx context.Context) (menu.RunSummary, error) {
	id, err := w.deps.IDs.NewID()
	if err != nil {
		return menu.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	run := newRun(id, w.deps.Clock.Now())
	w.current.Store(run)
	defer w.current.Store(nil)
	logger := logging.ForRun(w.logger, id)
	logger.Info("run started")

	if err := w.deps.Store.RecordRunStart(ctx, run.summary); err != nil {
		logger.Error("record run start failed", zap.Error(err))
	}

	runErr := w.execute(ctx, run, logger)
	return w.finish(ctx, run, runErr, logger), runErr
}

// Current returns the run in flight, or nil.
func (w *Worker) Current() *Run {
	return w.current.Load()
}

func (w *Worker) execute(ctx context.Context, run *Run, logger *zap.Logger) error {
	restaurants, err := w.deps.Directory.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("load directory: %w", err)
	}
	logger.Info("directory loaded", zap.Int("restaurants", len(restaurants)))

	if len(restaurants) > 0 {
		if _, err := w.deps.Store.UpsertRestaurants(ctx, restaurants); err != nil {
			logger.Error("upsert restaurants failed", zap.Error(err))
			run.summary.Error = err.Error()
		}
	}

	for _, r := range restaurants {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}
		rlog := logging.ForRestaurant(logger, r.ID, r.Name)
		counts, err := w.processRestaurant(ctx, run, r, rlog)
		if err != nil {
			run.summary.RestaurantsFailed++
			metrics.ObserveRestaurant("failed")
			rlog.Error("restaurant failed", zap.Error(err))
			continue
		}
		run.summary.RestaurantsOK++
		run.summary.MenuItems += counts.menu
		run.summary.WineItems += counts.wine
		run.summary.ItemsDropped += counts.dropped
		metrics.ObserveRestaurant("ok")
	}
	return nil
}

type restaurantCounts struct {
	menu, wine, dropped int
}

// processRestaurant crawls both catalogs and persists them. A panic anywhere
// below is converted to an error.
func (w *Worker) processRestaurant(ctx context.Context, run *Run, r menu.Restaurant, logger *zap.Logger) (counts restaurantCounts, err error) {
	run.begin(r.ID)
	defer run.end(r.ID)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("restaurant panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	menuItems, menuDropped, err := w.crawlCatalog(ctx, run, r, menu.CollectionMenu, r.MenuURL, logger)
	if err != nil {
		return counts, err
	}
	wineItems, wineDropped, err := w.crawlCatalog(ctx, run, r, menu.CollectionWine, r.WineURL, logger)
	if err != nil {
		return counts, err
	}
	counts.dropped = menuDropped + wineDropped

	if counts.menu, err = w.persist(ctx, menuItems, menu.CollectionMenu, logger); err != nil {
		return counts, err
	}
	if counts.wine, err = w.persist(ctx, wineItems, menu.CollectionWine, logger); err != nil {
		return counts, err
	}
	return counts, nil
}

func (w *Worker) crawlCatalog(
	ctx context.Context,
	run *Run,
	r menu.Restaurant,
	collection menu.Collection,
	url string,
	logger *zap.Logger,
) ([]menu.CatalogItem, int, error) {
	clog := logger.With(zap.String("collection", string(collection)))
	if url == "" {
		clog.Warn("no entry url")
		return nil, 0, nil
	}

	html, err := w.deps.Renderer.Render(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("render %s: %w", collection, err)
	}
	w.snapshot(ctx, run, r.ID, collection, html, clog)

	categories := catalog.ListCategories(html, w.cfg.BaseURL)
	total := catalog.TotalURLs(categories)
	clog.Info("catalog listed", zap.Int("categories", len(categories)), zap.Int("items", total))

	results := make([]menu.CatalogItem, total)
	ok := make([]bool, total)
	var g errgroup.Group
	i := 0
	for _, cat := range categories {
		for _, itemURL := range cat.URLs {
			idx := i
			g.Go(func() error {
				defer func() {
					if p := recover(); p != nil {
						clog.Error("item parser panicked", zap.String("url", itemURL), zap.Any("panic", p))
						ok[idx] = false
					}
				}()
				// Unparseable items are dropped, not failed; only cancellation
				// aborts the catalog.
				if err := ctx.Err(); err != nil {
					return err
				}
				results[idx], ok[idx] = w.deps.Items.ParseItem(ctx, itemURL, cat.Name, cat.ID, r.ID)
				return nil
			})
			i++
		}
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("crawl %s items: %w", collection, err)
	}

	items := make([]menu.CatalogItem, 0, total)
	for idx, item := range results {
		if ok[idx] {
			items = append(items, item)
		}
	}
	dropped := total - len(items)
	metrics.ObserveItems(string(collection), "parsed", len(items))
	metrics.ObserveItems(string(collection), "dropped", dropped)
	return items, dropped, nil
}

func (w *Worker) persist(ctx context.Context, items []menu.CatalogItem, collection menu.Collection, logger *zap.Logger) (int, error) {
	if len(items) == 0 {
		logger.Info("catalog empty", zap.String("collection", string(collection)))
		return 0, nil
	}
	n, err := w.deps.Store.UpsertCatalogItems(ctx, items, collection)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", collection, err)
	}
	metrics.ObserveItems(string(collection), "persisted", n)
	logger.Info("catalog synced", zap.String("collection", string(collection)), zap.Int("rows", n))
	return n, nil
}

func (w *Worker) snapshot(ctx context.Context, run *Run, restaurantID int64, collection menu.Collection, html string, logger *zap.Logger) {
	if _, discard := w.deps.Blobs.(storage.Discard); discard || w.deps.Hasher == nil {
		return
	}
	body := []byte(html)
	digest, err := w.deps.Hasher.Hash(body)
	if err != nil {
		logger.Warn("hash snapshot failed", zap.Error(err))
		return
	}
	path := storage.SnapshotPath(w.cfg.SnapshotPrefix, run.summary.RunID, restaurantID, collection, digest)
	uri, err := w.deps.Blobs.PutObject(ctx, path, w.cfg.ContentType, bytes.NewReader(body))
	if err != nil {
		logger.Warn("store snapshot failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("snapshot stored", zap.String("uri", uri))
}

// finish records the outcome. It uses a context detached from cancellation
// so an interrupted run still lands in the ledger.
func (w *Worker) finish(ctx context.Context, run *Run, runErr error, logger *zap.Logger) menu.RunSummary {
	ctx = context.WithoutCancel(ctx)
	finished := w.deps.Clock.Now()
	s := run.summary
	s.FinishedAt = &finished
	s.Status = deriveStatus(s, runErr)
	if runErr != nil {
		s.Error = runErr.Error()
	}

	if err := w.deps.Store.RecordRunFinish(ctx, s); err != nil {
		logger.Error("record run finish failed", zap.Error(err))
	}
	if w.deps.Publisher != nil {
		if _, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, s); err != nil {
			logger.Warn("publish run summary failed", zap.Error(err))
		}
	}

	duration := finished.Sub(s.StartedAt)
	metrics.ObserveRun(string(s.Status), duration)
	logger.Info("run finished",
		zap.String("status", string(s.Status)),
		zap.Int("restaurants_ok", s.RestaurantsOK),
		zap.Int("restaurants_failed", s.RestaurantsFailed),
		zap.Int("menu_items", s.MenuItems),
		zap.Int("wine_items", s.WineItems),
		zap.Int("items_dropped", s.ItemsDropped),
		zap.Duration("duration", duration),
	)
	return s
}

func deriveStatus(s menu.RunSummary, runErr error) menu.RunStatus {
	switch {
	case runErr != nil:
		return menu.RunError
	case s.RestaurantsFailed == 0 && s.Error == "":
		return menu.RunSuccess
	case s.RestaurantsOK == 0:
		return menu.RunError
	default:
		return menu.RunPartial
	}
}

// Elapsed is a helper for callers that log run duration.
func Elapsed(s menu.RunSummary) time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
