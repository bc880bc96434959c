package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

// DefaultRunsLimit bounds ListRuns when the caller passes no limit.
const DefaultRunsLimit = 20

// RecordRunStart inserts the ledger row for a run that has just begun.
func (g *Gateway) RecordRunStart(ctx context.Context, run menu.RunSummary) error {
	const query = `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE crawl_runs.status <> EXCLUDED.status`
	if _, err := g.pool.Exec(ctx, query, run.RunID, run.StartedAt, string(run.Status)); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordRunFinish stores the final counters and status of a run.
func (g *Gateway) RecordRunFinish(ctx context.Context, run menu.RunSummary) error {
	const query = `
		UPDATE crawl_runs
		SET finished_at = $2, status = $3, restaurants_ok = $4, restaurants_failed = $5,
			menu_items = $6, wine_items = $7, items_dropped = $8, error_message = $9
		WHERE id = $1`
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}
	tag, err := g.pool.Exec(ctx, query,
		run.RunID, run.FinishedAt, string(run.Status), run.RestaurantsOK, run.RestaurantsFailed,
		run.MenuItems, run.WineItems, run.ItemsDropped, errMsg,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record run finish %s: %w", run.RunID, ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (g *Gateway) ListRuns(ctx context.Context, limit int) ([]menu.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	const query = `
		SELECT id, started_at, finished_at, status, restaurants_ok, restaurants_failed,
			menu_items, wine_items, items_dropped, COALESCE(error_message, '')
		FROM crawl_runs
		ORDER BY started_at DESC
		LIMIT $1`
	rows, err := g.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []menu.RunSummary
	for rows.Next() {
		var (
			run    menu.RunSummary
			status string
		)
		if err := rows.Scan(
			&run.RunID, &run.StartedAt, &run.FinishedAt, &status, &run.RestaurantsOK, &run.RestaurantsFailed,
			&run.MenuItems, &run.WineItems, &run.ItemsDropped, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = menu.RunStatus(status)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
