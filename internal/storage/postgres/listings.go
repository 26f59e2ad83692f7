package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

const upsertServerSQL = `
INSERT INTO servers (server_id, name, location, pvp_type, battleye, experimental, is_active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)
ON CONFLICT (server_id) DO UPDATE SET
	name = EXCLUDED.name,
	location = EXCLUDED.location,
	pvp_type = EXCLUDED.pvp_type,
	battleye = EXCLUDED.battleye,
	experimental = EXCLUDED.experimental,
	is_active = TRUE,
	updated_at = NOW()
RETURNING id`

const upsertTownSQL = `
INSERT INTO towns (name)
VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

const upsertListingSQL = `
INSERT INTO %[1]s (%[2]s, name, server_id, town_id, size, rent, status, current_bid, auction_end, url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (%[2]s, server_id) DO UPDATE SET
	name = EXCLUDED.name,
	town_id = EXCLUDED.town_id,
	size = EXCLUDED.size,
	rent = EXCLUDED.rent,
	status = EXCLUDED.status,
	current_bid = EXCLUDED.current_bid,
	auction_end = EXCLUDED.auction_end,
	url = EXCLUDED.url,
	updated_at = NOW()`

const upsertStatsSQL = `
INSERT INTO server_stats (
	server_id, total_houses, total_guildhalls,
	rented_houses, auctioned_houses, available_houses,
	rented_guildhalls, auctioned_guildhalls, available_guildhalls,
	avg_house_rent, avg_guildhall_rent, last_updated
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
ON CONFLICT (server_id) DO UPDATE SET
	total_houses = EXCLUDED.total_houses,
	total_guildhalls = EXCLUDED.total_guildhalls,
	rented_houses = EXCLUDED.rented_houses,
	auctioned_houses = EXCLUDED.auctioned_houses,
	available_houses = EXCLUDED.available_houses,
	rented_guildhalls = EXCLUDED.rented_guildhalls,
	auctioned_guildhalls = EXCLUDED.auctioned_guildhalls,
	available_guildhalls = EXCLUDED.available_guildhalls,
	avg_house_rent = EXCLUDED.avg_house_rent,
	avg_guildhall_rent = EXCLUDED.avg_guildhall_rent,
	last_updated = NOW()`

// listingTables maps each family to its table and natural-id column.
var listingTables = map[housing.Family][2]string{
	housing.FamilyHouse:     {"houses", "house_id"},
	housing.FamilyGuildhall: {"guildhalls", "guildhall_id"},
}

// UpsertServer inserts or refreshes a world and returns its row id.
func (s *Store) UpsertServer(ctx context.Context, server housing.Server) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertServerSQL,
		server.ID,
		server.Name,
		server.Location.Label,
		server.PvPType.Label,
		server.BattlEye,
		server.Experimental,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert server %s: %w", server.Name, err)
	}
	return id, nil
}

// UpsertTown returns the row id of a town, creating it on first sight.
func (s *Store) UpsertTown(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, upsertTownSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert town %s: %w", name, err)
	}
	return id, nil
}

// UpsertListing writes a house or guildhall keyed by (natural id, server row).
func (s *Store) UpsertListing(ctx context.Context, listing housing.Listing, serverRef, townRef int64) error {
	table := listingTables[listing.Family()]
	query := fmt.Sprintf(upsertListingSQL, table[0], table[1])
	if _, err := s.pool.Exec(ctx, query,
		listing.ID,
		listing.Name,
		serverRef,
		townRef,
		listing.Size,
		listing.Rent,
		string(listing.Status),
		listing.CurrentBid,
		listing.AuctionEnd,
		listing.URL,
	); err != nil {
		return fmt.Errorf("upsert %s %d: %w", listing.Family(), listing.ID, err)
	}
	return nil
}

// UpsertServerStats replaces the aggregate counters of a world.
func (s *Store) UpsertServerStats(ctx context.Context, serverRef int64, stats housing.ServerStats) error {
	if _, err := s.pool.Exec(ctx, upsertStatsSQL,
		serverRef,
		stats.Houses.Total,
		stats.Guildhalls.Total,
		stats.Houses.Rented,
		stats.Houses.Auctioned,
		stats.Houses.Available,
		stats.Guildhalls.Rented,
		stats.Guildhalls.Auctioned,
		stats.Guildhalls.Available,
		stats.Houses.AvgRent,
		stats.Guildhalls.AvgRent,
	); err != nil {
		return fmt.Errorf("upsert server stats %d: %w", serverRef, err)
	}
	return nil
}
