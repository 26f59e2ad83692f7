// Package ingest writes one world's listing set into the store: the world
// row, its towns, every house and guildhall, and the world's aggregate stats.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
	"github.com/JakeFAU/tibia-housing-crawler/internal/metrics"
)

// Skip reasons reported to metrics.
const (
	skipTownUnresolved = "town_unresolved"
)

// Store is the persistence surface the coordinator needs. Every write must be
// an atomic upsert keyed on the natural identity of its row.
type Store interface {
	UpsertServer(ctx context.Context, server housing.Server) (int64, error)
	UpsertTown(ctx context.Context, name string) (int64, error)
	UpsertListing(ctx context.Context, listing housing.Listing, serverRef, townRef int64) error
	UpsertServerStats(ctx context.Context, serverRef int64, stats housing.ServerStats) error
}

// Coordinator persists listings and implements housing.Sink.
type Coordinator struct {
	store  Store
	clock  housing.Clock
	logger *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

var _ housing.Sink = (*Coordinator)(nil)

// New builds a Coordinator.
func New(store Store, clock housing.Clock, logger *zap.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		clock:  clock,
		logger: logger.Named("ingest"),
		locks:  make(map[int64]*sync.Mutex),
	}, nil
}

// serverLock returns the mutex serialising ingests of one world.
func (c *Coordinator) serverLock(serverID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[serverID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[serverID] = l
	}
	return l
}

// Persist upserts server, towns and listings. Failures of single towns or
// listings are logged and joined into the returned error while the remaining
// rows are still written; only a failed server upsert aborts early.
func (c *Coordinator) Persist(ctx context.Context, server housing.Server, listings []housing.Listing) (housing.ServerResult, error) {
	lock := c.serverLock(server.ID)
	lock.Lock()
	defer lock.Unlock()

	started := c.clock.Now()
	result := housing.ServerResult{Server: server.Name}
	logger := c.logger.With(zap.String("server", server.Name), zap.Int64("server_id", server.ID))

	serverRef, err := c.store.UpsertServer(ctx, server)
	if err != nil {
		logger.Error("server upsert failed", zap.Error(err))
		result.Failed = len(listings)
		return result, fmt.Errorf("persist %s: %w", server.Name, err)
	}

	var errs []error
	townRefs := c.resolveTowns(ctx, logger, listings, &errs)

	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		townRef, ok := townRefs[listing.Town]
		if !ok {
			result.Skipped++
			metrics.ObserveListingSkipped(skipTownUnresolved)
			logger.Warn("listing skipped, town unresolved",
				zap.Int64("listing_id", listing.ID),
				zap.String("town", listing.Town),
			)
			continue
		}
		if err := c.store.UpsertListing(ctx, listing, serverRef, townRef); err != nil {
			result.Failed++
			errs = append(errs, err)
			logger.Error("listing upsert failed",
				zap.Int64("listing_id", listing.ID),
				zap.String("family", string(listing.Family())),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveListingStored(string(listing.Family()))
		if listing.Guildhall {
			result.Guildhalls++
		} else {
			result.Houses++
		}
	}

	if err := c.store.UpsertServerStats(ctx, serverRef, housing.Summarize(listings)); err != nil {
		errs = append(errs, err)
		logger.Error("server stats upsert failed", zap.Error(err))
	}

	logger.Info("server persisted",
		zap.Int("houses", result.Houses),
		zap.Int("guildhalls", result.Guildhalls),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", c.clock.Now().Sub(started)),
	)

	if joined := errors.Join(errs...); joined != nil {
		return result, fmt.Errorf("persist %s: %w", server.Name, joined)
	}
	return result, nil
}

// resolveTowns upserts each distinct town once. Towns that fail are absent
// from the returned map.
func (c *Coordinator) resolveTowns(
	ctx context.Context,
	logger *zap.Logger,
	listings []housing.Listing,
	errs *[]error,
) map[string]int64 {
	names := make(map[string]struct{})
	for _, l := range listings {
		names[l.Town] = struct{}{}
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	refs := make(map[string]int64, len(ordered))
	for _, name := range ordered {
		ref, err := c.store.UpsertTown(ctx, name)
		if err != nil {
			*errs = append(*errs, err)
			logger.Error("town upsert failed", zap.String("town", name), zap.Error(err))
			continue
		}
		refs[name] = ref
	}
	return refs
}
