// Package app builds the long-lived services a command needs from the loaded
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/api"
	"github.com/JakeFAU/tibia-housing-crawler/internal/clock/system"
	"github.com/JakeFAU/tibia-housing-crawler/internal/config"
	"github.com/JakeFAU/tibia-housing-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/tibia-housing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
	"github.com/JakeFAU/tibia-housing-crawler/internal/id/uuid"
	"github.com/JakeFAU/tibia-housing-crawler/internal/ingest"
	"github.com/JakeFAU/tibia-housing-crawler/internal/pipeline"
	"github.com/JakeFAU/tibia-housing-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/tibia-housing-crawler/internal/retry"
	"github.com/JakeFAU/tibia-housing-crawler/internal/runs"
	"github.com/JakeFAU/tibia-housing-crawler/internal/snapshot"
	"github.com/JakeFAU/tibia-housing-crawler/internal/storage/gcs"
	"github.com/JakeFAU/tibia-housing-crawler/internal/storage/local"
	"github.com/JakeFAU/tibia-housing-crawler/internal/storage/postgres"
)

// ErrNoDatabase is returned by operations that need Postgres in file mode.
var ErrNoDatabase = errors.New("no database configured (output.mode is file)")

// App holds the services shared by every command.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  housing.Clock
	runKey string

	store     *postgres.Store
	gcsClient *gcsstorage.Client

	fetcher   housing.Fetcher
	extractor *extract.Extractor
	retrier   *retry.Retrier
	sink      housing.Sink
	tracker   *runs.Tracker
}

// Option customises an App.
type Option func(*App)

// WithClock replaces the wall clock.
func WithClock(c housing.Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithRetrier replaces the retrier built from config.
func WithRetrier(r *retry.Retrier) Option {
	return func(a *App) {
		if r != nil {
			a.retrier = r
		}
	}
}

// New wires services for cfg. In db mode the pool is pinged before New
// returns, so a scrape never starts against an unreachable database.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		runKey: uuid.New().RunKey(),
	}
	a.retrier = retry.New(retry.FromPolicy(cfg.Policy()), logger)
	for _, opt := range opts {
		opt(a)
	}

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		BaseURL:   cfg.HTTP.BaseURL,
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
		Charset:   cfg.HTTP.Charset,
		Limiter:   ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RequestsPerSecond, Burst: cfg.HTTP.Burst}),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	a.fetcher = fetcher
	a.extractor = extract.New(cfg.HTTP.BaseURL, logger)

	switch cfg.Output.Mode {
	case config.OutputDB:
		if err := a.initDatabase(ctx); err != nil {
			a.Close()
			return nil, err
		}
	case config.OutputFile:
		if err := a.initFiles(ctx); err != nil {
			a.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown output mode %q", cfg.Output.Mode)
	}

	logger.Info("services initialized",
		zap.String("run_key", a.runKey),
		zap.String("output", cfg.Output.Mode),
		zap.String("base_url", cfg.HTTP.BaseURL),
	)
	return a, nil
}

func (a *App) initDatabase(ctx context.Context) error {
	store, err := postgres.New(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.store = store
	a.logger.Info("testing database connection")
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("database pre-flight: %w", err)
	}
	sink, err := ingest.New(store, a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("init ingest: %w", err)
	}
	a.sink = sink
	a.tracker = runs.NewTracker(store, a.clock, a.logger)
	return nil
}

func (a *App) initFiles(ctx context.Context) error {
	var blobs snapshot.BlobStore
	if a.cfg.Output.GCSBucket != "" {
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Output.GCSBucket, Prefix: a.cfg.Output.GCSPrefix})
		if err != nil {
			return fmt.Errorf("init gcs store: %w", err)
		}
		blobs = store
		a.logger.Info("writing snapshots to gcs", zap.String("bucket", a.cfg.Output.GCSBucket))
	} else {
		store, err := local.New(local.Config{BaseDir: a.cfg.Output.Dir})
		if err != nil {
			return fmt.Errorf("init output dir: %w", err)
		}
		blobs = store
		a.logger.Info("writing snapshots to disk", zap.String("dir", a.cfg.Output.Dir))
	}
	writer, err := snapshot.NewWriter(blobs, a.clock, a.runKey, a.logger)
	if err != nil {
		return fmt.Errorf("init snapshot writer: %w", err)
	}
	a.sink = writer
	a.tracker = runs.NewTracker(nil, a.clock, a.logger)
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunKey identifies this process's run in logs and snapshots.
func (a *App) RunKey() string {
	return a.runKey
}

// Pipeline builds a scrape pipeline, optionally limited to the named worlds.
func (a *App) Pipeline(servers []string) (*pipeline.Pipeline, error) {
	p, err := pipeline.New(a.fetcher, a.extractor, a.retrier, a.sink, a.clock, a.logger, pipeline.Options{
		Policy:    a.cfg.Policy(),
		Towns:     a.cfg.Scrape.Towns,
		PerTown:   a.cfg.Scrape.PerTown,
		MaxPages:  a.cfg.Scrape.MaxPages,
		PageDelay: a.cfg.Scrape.PageDelay,
		Servers:   servers,
	})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return p, nil
}

// Scrape runs a full scrape bracketed by run tracking.
func (a *App) Scrape(ctx context.Context, servers []string) (housing.RunStats, error) {
	p, err := a.Pipeline(servers)
	if err != nil {
		return housing.RunStats{}, err
	}
	runID := a.tracker.Start(ctx)
	stats, runErr := p.Run(ctx)
	a.tracker.Finish(ctx, runID, stats, runErr)
	if runErr != nil {
		return stats, fmt.Errorf("scrape: %w", runErr)
	}
	return stats, nil
}

// Migrate applies the database schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.store == nil {
		return ErrNoDatabase
	}
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ops builds the ops HTTP server.
func (a *App) Ops() *api.Server {
	if a.store == nil {
		return api.NewServer(nil, nil, a.logger)
	}
	return api.NewServer(a.store, a.store, a.logger)
}

// Close releases every service. It is safe on a partially built App.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
	}
}
