// Package pipeline drives a scrape: discover worlds, fetch every world's
// listings town by town, and hand each world's set to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/batch"
	"github.com/JakeFAU/tibia-housing-crawler/internal/extract"
	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
	"github.com/JakeFAU/tibia-housing-crawler/internal/metrics"
	"github.com/JakeFAU/tibia-housing-crawler/internal/progress"
	"github.com/JakeFAU/tibia-housing-crawler/internal/retry"
)

// Server outcome labels.
const (
	outcomeStored = "stored"
	outcomeEmpty  = "empty"
	outcomeFailed = "failed"
)

// Options tune a scrape.
type Options struct {
	Policy housing.RequestPolicy
	// Towns are fetched one at a time when PerTown is set; otherwise one
	// paginated listing per category covers every town.
	Towns   []string
	PerTown bool
	// MaxPages bounds pagination per listing.
	MaxPages int
	// PageDelay is the pause between consecutive pages of one listing.
	PageDelay time.Duration
	// Servers restricts the scrape to the named worlds when non-empty.
	Servers []string
}

// Pipeline wires the fetch client, extractor, retrier and sink together.
type Pipeline struct {
	fetcher   housing.Fetcher
	extractor *extract.Extractor
	retrier   *retry.Retrier
	sink      housing.Sink
	clock     housing.Clock
	logger    *zap.Logger
	opts      Options
}

// New builds a Pipeline.
func New(
	fetcher housing.Fetcher,
	extractor *extract.Extractor,
	retrier *retry.Retrier,
	sink housing.Sink,
	clock housing.Clock,
	logger *zap.Logger,
	opts Options,
) (*Pipeline, error) {
	switch {
	case fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case retrier == nil:
		return nil, fmt.Errorf("retrier is required")
	case sink == nil:
		return nil, fmt.Errorf("sink is required")
	case clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		retrier:   retrier,
		sink:      sink,
		clock:     clock,
		logger:    logger.Named("pipeline"),
		opts:      opts,
	}, nil
}

// IsFatal reports whether err must end the process: the retry budget ran out
// or the site is in maintenance.
func IsFatal(err error) bool {
	return errors.Is(err, retry.ErrExhausted) || errors.Is(err, extract.ErrMaintenance)
}

// Discover fetches and classifies the world list.
func (p *Pipeline) Discover(ctx context.Context) ([]housing.Server, error) {
	content, err := retry.Do(ctx, p.retrier, "fetch worlds", func(ctx context.Context) (string, error) {
		return p.fetcher.FetchText(ctx, housing.WorldsPage())
	})
	if err != nil {
		return nil, fmt.Errorf("discover servers: %w", err)
	}
	doc, err := extract.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("discover servers: %w", err)
	}
	servers, err := p.extractor.Servers(doc)
	if err != nil {
		return nil, fmt.Errorf("discover servers: %w", err)
	}
	return p.filter(servers), nil
}

func (p *Pipeline) filter(servers []housing.Server) []housing.Server {
	if len(p.opts.Servers) == 0 {
		return servers
	}
	want := make(map[string]struct{}, len(p.opts.Servers))
	for _, name := range p.opts.Servers {
		want[name] = struct{}{}
	}
	out := servers[:0:0]
	for _, s := range servers {
		if _, ok := want[s.Name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Run scrapes every discovered world and returns the run totals. Only fatal
// errors (see IsFatal) and cancellation are returned; a world whose listings
// could not be persisted is logged and counted with what was stored.
func (p *Pipeline) Run(ctx context.Context) (housing.RunStats, error) {
	var stats housing.RunStats
	started := p.clock.Now()

	servers, err := p.Discover(ctx)
	if err != nil {
		return stats, err
	}
	if len(servers) == 0 {
		p.logger.Warn("no servers found")
		return stats, nil
	}
	p.logger.Info("servers discovered", zap.Int("servers", len(servers)))

	tracker := progress.NewTracker(len(servers), p.clock)
	tasks := make([]batch.Task[housing.ServerResult], len(servers))
	for i, server := range servers {
		tasks[i] = func(ctx context.Context) (housing.ServerResult, error) {
			p.logger.Info("processing server",
				zap.String("server", server.Name),
				zap.String("progress", tracker.Snapshot().String()),
			)
			res, err := p.ScrapeServer(ctx, server)
			tracker.Inc()
			return res, err
		}
	}

	results, err := batch.Run(ctx, tasks, batch.Options{
		Concurrency: p.opts.Policy.Concurrency,
		Delay:       p.opts.Policy.Delay,
		OnGroupDone: func(done, total int) {
			p.logger.Debug("batch group done", zap.Int("done", done), zap.Int("total", total))
		},
	})
	if err != nil {
		return stats, err
	}

	withData := 0
	for _, r := range results {
		stats.Add(r)
		if r.Houses > 0 || r.Guildhalls > 0 {
			withData++
		}
	}
	p.logger.Info("scrape finished",
		zap.Int("servers", stats.Servers),
		zap.Int("servers_with_data", withData),
		zap.Int("houses", stats.Houses),
		zap.Int("guildhalls", stats.Guildhalls),
		zap.Int("properties", stats.Houses+stats.Guildhalls),
		zap.String("elapsed", progress.FormatElapsed(p.clock.Now().Sub(started))),
	)
	return stats, nil
}

// ScrapeServer collects one world's listings and persists them. Fatal errors
// are returned; persistence failures are logged and reflected in the result.
func (p *Pipeline) ScrapeServer(ctx context.Context, server housing.Server) (housing.ServerResult, error) {
	logger := p.logger.With(zap.String("server", server.Name))

	listings, err := p.collect(ctx, server, logger)
	if err != nil {
		metrics.ObserveServer(outcomeFailed)
		return housing.ServerResult{Server: server.Name}, err
	}
	if len(listings) == 0 {
		metrics.ObserveServer(outcomeEmpty)
		logger.Warn("no properties found")
		return housing.ServerResult{Server: server.Name}, nil
	}

	res, err := p.sink.Persist(ctx, server, listings)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		metrics.ObserveServer(outcomeFailed)
		logger.Error("persist server failed", zap.Error(err))
		return res, nil
	}

	metrics.ObserveServer(outcomeStored)
	st := housing.Summarize(listings)
	logger.Info("server stored",
		zap.Int("properties", len(listings)),
		zap.Int("rented", st.Houses.Rented+st.Guildhalls.Rented),
		zap.Int("auctioned", st.Houses.Auctioned+st.Guildhalls.Auctioned),
		zap.Int("available", st.Houses.Available+st.Guildhalls.Available),
		zap.Int("houses", res.Houses),
		zap.Int("guildhalls", res.Guildhalls),
	)
	return res, nil
}

type listingKey struct {
	family housing.Family
	id     int64
}

// collect fetches every town and category of a world through the batch
// runner. Listings are folded in task order; a listing seen twice keeps its
// last occurrence.
func (p *Pipeline) collect(ctx context.Context, server housing.Server, logger *zap.Logger) ([]housing.Listing, error) {
	towns := []string{""}
	if p.opts.PerTown {
		towns = p.opts.Towns
	}
	categories := []housing.Category{housing.CategoryHouses, housing.CategoryGuildhalls}

	descriptors := make([]housing.Descriptor, 0, len(towns)*len(categories))
	for _, town := range towns {
		for _, category := range categories {
			descriptors = append(descriptors, housing.ListingPage(server.Name, town, category))
		}
	}

	tasks := make([]batch.Task[[]housing.Listing], len(descriptors))
	for i, d := range descriptors {
		tasks[i] = func(ctx context.Context) ([]housing.Listing, error) {
			found, err := p.fetchListing(ctx, server, d)
			if err != nil {
				if IsFatal(err) || ctx.Err() != nil {
					return nil, err
				}
				logger.Warn("listing skipped",
					zap.String("town", d.Town),
					zap.String("category", string(d.Category)),
					zap.Error(err),
				)
				return nil, nil
			}
			if len(found) > 0 {
				logger.Debug("listing collected",
					zap.String("town", d.Town),
					zap.String("category", string(d.Category)),
					zap.Int("properties", len(found)),
				)
			}
			return found, nil
		}
	}

	results, err := batch.Run(ctx, tasks, batch.Options{
		Concurrency: p.opts.Policy.Concurrency,
		Delay:       p.opts.Policy.Delay,
	})
	if err != nil {
		return nil, err
	}

	index := make(map[listingKey]int)
	var out []housing.Listing
	for _, found := range results {
		for _, l := range found {
			key := listingKey{family: l.Family(), id: l.ID}
			if i, ok := index[key]; ok {
				out[i] = l
				continue
			}
			index[key] = len(out)
			out = append(out, l)
		}
	}
	return out, nil
}

// fetchListing walks a listing's pagination up to MaxPages.
func (p *Pipeline) fetchListing(ctx context.Context, server housing.Server, d housing.Descriptor) ([]housing.Listing, error) {
	req := housing.ExtractRequest{ServerName: server.Name, ServerID: server.ID, Category: d.Category}
	seen := make(map[string]struct{})
	var out []housing.Listing

	for page := 1; ; page++ {
		content, err := retry.Do(ctx, p.retrier, "fetch "+d.String(), func(ctx context.Context) (string, error) {
			return p.fetcher.FetchText(ctx, d)
		})
		if err != nil {
			return nil, err
		}
		doc, err := extract.Parse(content)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d, err)
		}
		listings, err := p.extractor.Houses(doc, req)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", d, err)
		}
		out = append(out, listings...)

		next, ok := p.extractor.NextPage(doc)
		if !ok {
			return out, nil
		}
		if page >= p.opts.MaxPages {
			p.logger.Warn("max pages reached",
				zap.String("server", server.Name),
				zap.String("listing", d.String()),
				zap.Int("pages", page),
				zap.Int("total_pages", extract.TotalPages(doc)),
			)
			return out, nil
		}
		if _, dup := seen[next]; dup {
			return out, nil
		}
		seen[next] = struct{}{}
		if err := pause(ctx, p.opts.PageDelay); err != nil {
			return nil, err
		}
		d = housing.Descriptor{Page: housing.PageHouses, World: d.World, Town: d.Town, Category: d.Category, URL: next}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
