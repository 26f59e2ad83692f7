package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

const startRunSQL = `
INSERT INTO scraping_runs (started_at, status)
VALUES ($1, $2)
RETURNING id`

const finishRunSQL = `
UPDATE scraping_runs
SET completed_at = $1,
	total_houses = $2,
	total_guildhalls = $3,
	total_servers = $4,
	status = $5,
	error_message = $6
WHERE id = $7`

const listRunsSQL = `
SELECT id, started_at, completed_at,
	COALESCE(total_houses, 0), COALESCE(total_guildhalls, 0), COALESCE(total_servers, 0),
	status, error_message
FROM scraping_runs
ORDER BY started_at DESC
LIMIT $1`

// StartRun inserts a running scraping run.
func (s *Store) StartRun(ctx context.Context, startedAt time.Time) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, startRunSQL, startedAt, string(housing.RunRunning)).Scan(&id); err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome and totals of a run.
func (s *Store) FinishRun(
	ctx context.Context,
	id int64,
	finishedAt time.Time,
	stats housing.RunStats,
	status housing.RunStatus,
	errMsg *string,
) error {
	tag, err := s.pool.Exec(ctx, finishRunSQL,
		finishedAt,
		stats.Houses,
		stats.Guildhalls,
		stats.Servers,
		string(status),
		errMsg,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]housing.Run, error) {
	rows, err := s.pool.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []housing.Run
	for rows.Next() {
		var (
			run    housing.Run
			status string
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Stats.Houses,
			&run.Stats.Guildhalls,
			&run.Stats.Servers,
			&status,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = housing.RunStatus(status)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
