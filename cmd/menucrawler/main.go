package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/api"
	"github.com/JakeFAU/menu-crawler/internal/catalog"
	"github.com/JakeFAU/menu-crawler/internal/clock/system"
	"github.com/JakeFAU/menu-crawler/internal/config"
	"github.com/JakeFAU/menu-crawler/internal/directory"
	collyfetcher "github.com/JakeFAU/menu-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/menu-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/menu-crawler/internal/hash/sha256"
	"github.com/JakeFAU/menu-crawler/internal/id/uuid"
	"github.com/JakeFAU/menu-crawler/internal/logging"
	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/menu-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/menu-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/menu-crawler/internal/scheduler"
	"github.com/JakeFAU/menu-crawler/internal/storage"
	"github.com/JakeFAU/menu-crawler/internal/storage/postgres"
	"github.com/JakeFAU/menu-crawler/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	envPath := flag.String("env", ".env", "Path to dotenv file loaded before config")
	once := flag.Bool("once", false, "Run a single ingestion pass and exit")
	printSchema := flag.Bool("schema", false, "Print the database schema and exit")
	flag.Parse()

	if *printSchema {
		fmt.Print(postgres.Schema())
		return
	}

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load env file failed: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logger); err != nil {
		logger.Error("menu crawler stopped", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, once bool, logger *zap.Logger) error {
	clock, ids := system.New(), uuid.New()
	gateway, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.ConnString(),
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	},
		postgres.WithLogger(logger),
		postgres.WithClock(clock),
		postgres.WithIDGenerator(ids),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer gateway.Close()
	if cfg.DB.AutoMigrate {
		if err := gateway.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		logger.Info("schema applied")
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RateLimitRPS,
		DefaultBurst: cfg.Crawler.RateLimitBurst,
	})
	jitterMin, jitterMax := cfg.Jitter()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		Concurrency: int64(cfg.Crawler.Concurrency),
		MaxAttempts: cfg.Crawler.MaxAttempts,
		JitterMin:   jitterMin,
		JitterMax:   jitterMax,
	},
		collyfetcher.WithLogger(logger.Named("fetcher")),
		collyfetcher.WithLimiter(limiter),
	)

	renderer, closeRenderer, err := newRenderer(ctx, cfg, fetcher, logger)
	if err != nil {
		return err
	}
	defer closeRenderer()

	blobs, closeBlobs, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		if err := closeBlobs(); err != nil {
			logger.Warn("close snapshot store failed", zap.Error(err))
		}
	}()

	publisher, closePublisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	w, err := worker.New(worker.Deps{
		Directory: directory.New(fetcher, directory.Config{
			BaseURL:        cfg.Site.BaseURL,
			RestaurantsURL: cfg.RestaurantsURL(),
			Excluded:       cfg.Site.ExcludedRestaurants,
		}, logger.Named("directory")),
		Renderer:  renderer,
		Items:     catalog.NewExtractor(fetcher, cfg.Site.BaseURL, logger.Named("catalog")),
		Store:     gateway,
		Blobs:     blobs,
		Publisher: publisher,
		Hasher:    sha256.New(),
		Clock:     clock,
		IDs:       ids,
	}, worker.Config{
		BaseURL:        cfg.Site.BaseURL,
		SnapshotPrefix: cfg.Storage.Prefix,
		ContentType:    cfg.Storage.ContentType,
		Topic:          cfg.PubSub.TopicName,
	}, logger)
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	if once {
		summary, err := w.Run(ctx)
		if err != nil {
			return fmt.Errorf("ingestion run %s: %w", summary.RunID, err)
		}
		logger.Info("single run complete",
			zap.String("status", string(summary.Status)),
			zap.Duration("elapsed", worker.Elapsed(summary)),
		)
		return nil
	}

	sched := scheduler.New(w, cfg.Crawler.Interval, logger)
	apiServer := api.NewServer(gateway, sched, cfg, logger)
	apiServer.SetProgress(func() []int64 {
		if current := w.Current(); current != nil {
			return current.InProgress()
		}
		return nil
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		logger.Info("scheduler started", zap.Duration("interval", cfg.Crawler.Interval))
		sched.Start(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-schedDone
	logger.Info("shutdown complete",
		zap.Int64("runs", sched.Runs()),
		zap.Int("rate_limited_hosts", limiter.Hosts()),
	)
	return runErr
}

func newRenderer(ctx context.Context, cfg config.Config, fetcher menu.Fetcher, logger *zap.Logger) (menu.Renderer, func(), error) {
	if !cfg.Headless.Enabled {
		logger.Warn("headless rendering disabled; listing pages will not be scrolled")
		return headless.NewStatic(fetcher), func() {}, nil
	}
	r, err := headless.NewChromedp(ctx, headless.Config{
		MaxParallel:       1,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Headless.SettleMs) * time.Millisecond,
		ScrollPause:       time.Duration(cfg.Headless.ScrollPauseMs) * time.Millisecond,
		MaxScrolls:        cfg.Headless.MaxScrolls,
	}, logger.Named("renderer"))
	if err != nil {
		return nil, nil, fmt.Errorf("start headless browser: %w", err)
	}
	return r, r.Close, nil
}

func newPublisher(ctx context.Context, cfg config.Config) (menu.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(memorypublisher.WithLimit(memorypublisher.DefaultLimit)), func() {}, nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client, cfg.PubSub.TopicName)
	return pub, func() {
		pub.Close()
		_ = client.Close()
	}, nil
}
