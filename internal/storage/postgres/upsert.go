package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/metrics"
)

// maxBindParams is the Postgres wire protocol limit on parameters per statement.
const maxBindParams = 65535

var restaurantColumns = []string{
	"restaurant_id", "name", "address", "image", "metro", "description",
	"veranda", "changing_table", "animation", "work_time", "contacts", "vine_card",
}

var itemColumns = []string{
	"id", "restaurant_id", "category", "category_id", "name", "price",
	"calories", "proteins", "fats", "carbohydrates", "weight", "description",
	"composition", "allergens", "image", "availability", "timetable",
}

// UpsertRestaurants writes restaurants keyed by restaurant_id and returns the
// number of rows written. Records without an id are skipped.
func (g *Gateway) UpsertRestaurants(ctx context.Context, restaurants []menu.Restaurant) (int, error) {
	index := make(map[int64]int, len(restaurants))
	rows := make([][]any, 0, len(restaurants))
	for _, r := range restaurants {
		if !r.HasKey() {
			g.logger.Warn("skipping restaurant without id", zap.String("name", r.Name))
			continue
		}
		row := []any{
			r.ID, r.Name, r.Address, r.Image, r.Metro, r.Description,
			r.Veranda, r.ChangingTable, r.Animation, r.WorkTime, r.Contacts, r.VineCard,
		}
		if i, dup := index[r.ID]; dup {
			rows[i] = row
			continue
		}
		index[r.ID] = len(rows)
		rows = append(rows, row)
	}

	n, err := g.upsert(ctx, "restaurants", restaurantColumns, []string{"restaurant_id"}, rows)
	if err != nil {
		return n, fmt.Errorf("upsert restaurants: %w", err)
	}
	metrics.ObserveUpsert("restaurants", n)
	return n, nil
}

type itemKey struct {
	id           int64
	restaurantID int64
}

// UpsertCatalogItems writes items into the collection's table keyed by
// (id, restaurant_id). Every non-key column is overwritten.
func (g *Gateway) UpsertCatalogItems(ctx context.Context, items []menu.CatalogItem, collection menu.Collection) (int, error) {
	table, err := tableFor(collection)
	if err != nil {
		return 0, err
	}

	index := make(map[itemKey]int, len(items))
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		if !it.HasKey() {
			g.logger.Warn("skipping item without key",
				zap.String("table", table),
				zap.Int64("id", it.ID),
				zap.Int64("restaurant_id", it.RestaurantID),
				zap.String("name", it.Name),
			)
			continue
		}
		row := []any{
			it.ID, it.RestaurantID, it.Category, it.CategoryID, it.Name, it.Price,
			it.Calories, it.Proteins, it.Fats, it.Carbohydrates, it.Weight, it.Description,
			it.Composition, it.Allergens, it.Image, it.Availability, it.Timetable,
		}
		key := itemKey{id: it.ID, restaurantID: it.RestaurantID}
		if i, dup := index[key]; dup {
			rows[i] = row
			continue
		}
		index[key] = len(rows)
		rows = append(rows, row)
	}

	n, err := g.upsert(ctx, table, itemColumns, []string{"id", "restaurant_id"}, rows)
	if err != nil {
		return n, fmt.Errorf("upsert %s: %w", table, err)
	}
	metrics.ObserveUpsert(table, n)
	return n, nil
}

func (g *Gateway) upsert(ctx context.Context, table string, columns, conflict []string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	perChunk := maxBindParams / len(columns)
	written := 0
	for start := 0; start < len(rows); start += perChunk {
		end := min(start+perChunk, len(rows))
		query, args := buildUpsert(table, columns, conflict, rows[start:end])
		tag, err := g.pool.Exec(ctx, query, args...)
		if err != nil {
			return written, err
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

// buildUpsert renders one multi-row INSERT ... ON CONFLICT DO UPDATE statement.
func buildUpsert(table string, columns, conflict []string, rows [][]any) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(args) + j + 1))
		}
		b.WriteByte(')')
		args = append(args, row...)
	}

	keys := make(map[string]struct{}, len(conflict))
	for _, c := range conflict {
		keys[c] = struct{}{}
	}
	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(conflict, ", "))
	b.WriteString(") DO UPDATE SET ")
	first := true
	for _, c := range columns {
		if _, isKey := keys[c]; isKey {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(c)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(c)
	}
	return b.String(), args
}
