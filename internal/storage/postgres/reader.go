package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

var (
	restaurantSelect = "SELECT " + strings.Join(restaurantColumns, ", ") + " FROM restaurants"
	itemSelectCols   = strings.Join(itemColumns, ", ")
)

// ListRestaurants returns every stored restaurant ordered by name.
func (g *Gateway) ListRestaurants(ctx context.Context) ([]menu.Restaurant, error) {
	rows, err := g.pool.Query(ctx, restaurantSelect+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query restaurants: %w", err)
	}
	defer rows.Close()

	var out []menu.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}
	return out, nil
}

// GetRestaurant returns one restaurant or ErrNotFound.
func (g *Gateway) GetRestaurant(ctx context.Context, id int64) (menu.Restaurant, error) {
	row := g.pool.QueryRow(ctx, restaurantSelect+" WHERE restaurant_id = $1", id)
	r, err := scanRestaurant(row)
	if errors.Is(err, ErrNotFound) {
		return menu.Restaurant{}, fmt.Errorf("restaurant %d: %w", id, ErrNotFound)
	}
	return r, err
}

func scanRestaurant(row pgx.Row) (menu.Restaurant, error) {
	var r menu.Restaurant
	err := row.Scan(
		&r.ID, &r.Name, &r.Address, &r.Image, &r.Metro, &r.Description,
		&r.Veranda, &r.ChangingTable, &r.Animation, &r.WorkTime, &r.Contacts, &r.VineCard,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.Restaurant{}, ErrNotFound
	}
	if err != nil {
		return menu.Restaurant{}, fmt.Errorf("scan restaurant: %w", err)
	}
	return r, nil
}

// ListCategories summarizes the categories a restaurant offers in collection.
func (g *Gateway) ListCategories(ctx context.Context, collection menu.Collection, restaurantID int64) ([]menu.CategorySummary, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT category_id, category, COUNT(*) FROM %s
WHERE restaurant_id = $1
GROUP BY category_id, category
ORDER BY category_id, category`, table)

	rows, err := g.pool.Query(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("query %s categories: %w", table, err)
	}
	defer rows.Close()

	var out []menu.CategorySummary
	for rows.Next() {
		var c menu.CategorySummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Items); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// ListItems returns the items of one category ordered by name.
func (g *Gateway) ListItems(ctx context.Context, collection menu.Collection, restaurantID int64, categoryID int) ([]menu.CatalogItem, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE restaurant_id = $1 AND category_id = $2 ORDER BY name", itemSelectCols, table)

	rows, err := g.pool.Query(ctx, query, restaurantID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("query %s items: %w", table, err)
	}
	defer rows.Close()

	var out []menu.CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// GetItem looks an item up by sku. A restaurantID of zero matches the item
// in whichever restaurant sorts first.
func (g *Gateway) GetItem(ctx context.Context, collection menu.Collection, id, restaurantID int64) (menu.CatalogItem, error) {
	table, err := tableFor(collection)
	if err != nil {
		return menu.CatalogItem{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE id = $1 AND ($2::bigint = 0 OR restaurant_id = $2)
ORDER BY restaurant_id LIMIT 1`, itemSelectCols, table)

	it, err := scanItem(g.pool.QueryRow(ctx, query, id, restaurantID))
	if errors.Is(err, ErrNotFound) {
		return menu.CatalogItem{}, fmt.Errorf("%s item %d: %w", collection, id, ErrNotFound)
	}
	return it, err
}

func scanItem(row pgx.Row) (menu.CatalogItem, error) {
	var it menu.CatalogItem
	err := row.Scan(
		&it.ID, &it.RestaurantID, &it.Category, &it.CategoryID, &it.Name, &it.Price,
		&it.Calories, &it.Proteins, &it.Fats, &it.Carbohydrates, &it.Weight, &it.Description,
		&it.Composition, &it.Allergens, &it.Image, &it.Availability, &it.Timetable,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.CatalogItem{}, ErrNotFound
	}
	if err != nil {
		return menu.CatalogItem{}, fmt.Errorf("scan item: %w", err)
	}
	return it, nil
}
