// Package runs records scraping runs. Tracking is observational: a failing
// store is logged and never interrupts the scrape.
package runs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

// Store persists run rows.
type Store interface {
	StartRun(ctx context.Context, startedAt time.Time) (int64, error)
	FinishRun(
		ctx context.Context,
		id int64,
		finishedAt time.Time,
		stats housing.RunStats,
		status housing.RunStatus,
		errMsg *string,
	) error
}

// Tracker opens and closes run rows.
type Tracker struct {
	store  Store
	clock  housing.Clock
	logger *zap.Logger
}

// NewTracker builds a Tracker. A nil store yields a tracker that only logs.
func NewTracker(store Store, clock housing.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, clock: clock, logger: logger.Named("runs")}
}

func (t *Tracker) now() time.Time {
	if t.clock == nil {
		return time.Now().UTC()
	}
	return t.clock.Now()
}

// Start inserts a running row and returns its id, or 0 when nothing was
// recorded.
func (t *Tracker) Start(ctx context.Context) int64 {
	startedAt := t.now()
	if t.store == nil {
		t.logger.Info("run started", zap.Time("started_at", startedAt))
		return 0
	}
	id, err := t.store.StartRun(ctx, startedAt)
	if err != nil {
		t.logger.Warn("record run start failed", zap.Error(err))
		return 0
	}
	t.logger.Info("run started", zap.Int64("run_id", id), zap.Time("started_at", startedAt))
	return id
}

// Finish marks the run completed, or failed when runErr is non-nil.
func (t *Tracker) Finish(ctx context.Context, id int64, stats housing.RunStats, runErr error) {
	status := housing.RunCompleted
	var msg *string
	if runErr != nil {
		status = housing.RunFailed
		text := runErr.Error()
		msg = &text
	}
	fields := []zap.Field{
		zap.Int64("run_id", id),
		zap.String("status", string(status)),
		zap.Int("houses", stats.Houses),
		zap.Int("guildhalls", stats.Guildhalls),
		zap.Int("servers", stats.Servers),
	}
	if t.store == nil || id == 0 {
		t.logger.Info("run finished", fields...)
		return
	}
	// The outcome is recorded even when the scrape's context was cancelled.
	if err := t.store.FinishRun(context.WithoutCancel(ctx), id, t.now(), stats, status, msg); err != nil {
		t.logger.Warn("record run finish failed", append(fields, zap.Error(err))...)
		return
	}
	t.logger.Info("run finished", fields...)
}
