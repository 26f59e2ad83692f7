package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

// ErrNotFound signals that a run or row does not exist.
var ErrNotFound = errors.New("not found")

type listingKey struct {
	family    housing.Family
	id        int64
	serverRef int64
}

// StoredListing is a persisted listing with its resolved row references.
type StoredListing struct {
	Listing   housing.Listing
	ServerRef int64
	TownRef   int64
	UpdatedAt time.Time
}

// Store is an in-memory counterpart of the Postgres store for development
// and tests. Rows are keyed exactly like the database's unique indexes.
type Store struct {
	mu sync.RWMutex

	nextID   int64
	servers  map[int64]int64 // server_id -> row id
	worlds   map[int64]housing.Server
	towns    map[string]int64
	listings map[listingKey]StoredListing
	stats    map[int64]housing.ServerStats
	runs     map[int64]housing.Run

	// FailListing, when set, is consulted before every listing write.
	FailListing func(housing.Listing) error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		servers:  make(map[int64]int64),
		worlds:   make(map[int64]housing.Server),
		towns:    make(map[string]int64),
		listings: make(map[listingKey]StoredListing),
		stats:    make(map[int64]housing.ServerStats),
		runs:     make(map[int64]housing.Run),
	}
}

func (s *Store) allocate() int64 {
	s.nextID++
	return s.nextID
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// UpsertServer inserts or refreshes a world and returns its row id.
func (s *Store) UpsertServer(_ context.Context, server housing.Server) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.servers[server.ID]
	if !ok {
		ref = s.allocate()
		s.servers[server.ID] = ref
	}
	s.worlds[ref] = server
	return ref, nil
}

// UpsertTown returns the row id of a town, creating it on first sight.
func (s *Store) UpsertTown(_ context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("upsert town: empty name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.towns[name]
	if !ok {
		ref = s.allocate()
		s.towns[name] = ref
	}
	return ref, nil
}

// UpsertListing writes a house or guildhall keyed by (natural id, server row).
func (s *Store) UpsertListing(_ context.Context, listing housing.Listing, serverRef, townRef int64) error {
	if s.FailListing != nil {
		if err := s.FailListing(listing); err != nil {
			return fmt.Errorf("upsert %s %d: %w", listing.Family(), listing.ID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.worlds[serverRef]; !ok {
		return fmt.Errorf("upsert %s %d: server %d: %w", listing.Family(), listing.ID, serverRef, ErrNotFound)
	}
	key := listingKey{family: listing.Family(), id: listing.ID, serverRef: serverRef}
	s.listings[key] = StoredListing{
		Listing:   listing,
		ServerRef: serverRef,
		TownRef:   townRef,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// UpsertServerStats replaces the aggregate counters of a world.
func (s *Store) UpsertServerStats(_ context.Context, serverRef int64, stats housing.ServerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[serverRef] = stats
	return nil
}

// StartRun inserts a running scraping run.
func (s *Store) StartRun(_ context.Context, startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocate()
	s.runs[id] = housing.Run{ID: id, StartedAt: startedAt, Status: housing.RunRunning}
	return id, nil
}

// FinishRun records the outcome and totals of a run.
func (s *Store) FinishRun(
	_ context.Context,
	id int64,
	finishedAt time.Time,
	stats housing.RunStats,
	status housing.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("finish run %d: %w", id, ErrNotFound)
	}
	run.FinishedAt = &finishedAt
	run.Stats = stats
	run.Status = status
	run.Error = errMsg
	s.runs[id] = run
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(_ context.Context, limit int) ([]housing.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]housing.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ServerRef returns the row id of a world by its derived server id.
func (s *Store) ServerRef(serverID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.servers[serverID]
	return ref, ok
}

// Listings returns the stored listings of one world ordered by family then id.
func (s *Store) Listings(serverRef int64) []StoredListing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredListing
	for key, row := range s.listings {
		if key.serverRef == serverRef {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Listing, out[j].Listing
		if a.Family() != b.Family() {
			return a.Family() < b.Family()
		}
		return a.ID < b.ID
	})
	return out
}

// Stats returns the last stats written for a world.
func (s *Store) Stats(serverRef int64) (housing.ServerStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[serverRef]
	return st, ok
}

// Towns returns the number of distinct towns stored.
func (s *Store) Towns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.towns)
}
