package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

// ErrEmptyCart is returned by Checkout when the user has nothing in the cart.
var ErrEmptyCart = errors.New("cart is empty")

const cartSelect = `
	SELECT user_id, item_id, restaurant_id, is_wine, item_name, price, count
	FROM cart
	WHERE user_id = $1
	ORDER BY item_name, item_id`

// AddToCart adds one unit of an item, creating the line when needed, and
// returns the updated line.
func (g *Gateway) AddToCart(ctx context.Context, line menu.CartLine) (menu.CartLine, error) {
	const query = `
		INSERT INTO cart (user_id, item_id, restaurant_id, is_wine, item_name, price, count)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (user_id, item_id, restaurant_id, is_wine) DO UPDATE
		SET count = cart.count + 1, item_name = EXCLUDED.item_name, price = EXCLUDED.price
		RETURNING count`
	err := g.pool.QueryRow(ctx, query,
		line.UserID, line.ItemID, line.RestaurantID, line.IsWine, line.Name, line.PriceMinor,
	).Scan(&line.Count)
	if err != nil {
		return menu.CartLine{}, fmt.Errorf("add to cart: %w", err)
	}
	g.logger.Info("cart updated",
		zap.Int64("user_id", line.UserID),
		zap.Int64("item_id", line.ItemID),
		zap.Int("count", line.Count),
	)
	return line, nil
}

// ListCart returns the user's cart lines.
func (g *Gateway) ListCart(ctx context.Context, userID int64) ([]menu.CartLine, error) {
	rows, err := g.pool.Query(ctx, cartSelect, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	return collectCart(rows)
}

// ClearCart deletes every line of the user's cart.
func (g *Gateway) ClearCart(ctx context.Context, userID int64) error {
	if _, err := g.pool.Exec(ctx, "DELETE FROM cart WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Checkout snapshots the cart into an order and empties it in one transaction.
func (g *Gateway) Checkout(ctx context.Context, userID int64) (menu.Order, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return menu.Order{}, fmt.Errorf("begin checkout: %w", err)
	}
	order, err := g.checkout(ctx, tx, userID)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			g.logger.Warn("checkout rollback failed", zap.Int64("user_id", userID), zap.Error(rbErr))
		}
		return menu.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return menu.Order{}, fmt.Errorf("commit checkout: %w", err)
	}
	g.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total", order.TotalMinor),
	)
	return order, nil
}

func (g *Gateway) checkout(ctx context.Context, tx pgx.Tx, userID int64) (menu.Order, error) {
	rows, err := tx.Query(ctx, cartSelect+" FOR UPDATE", userID)
	if err != nil {
		return menu.Order{}, fmt.Errorf("lock cart: %w", err)
	}
	lines, err := collectCart(rows)
	if err != nil {
		return menu.Order{}, err
	}
	if len(lines) == 0 {
		return menu.Order{}, ErrEmptyCart
	}

	id, err := g.ids.NewID()
	if err != nil {
		return menu.Order{}, fmt.Errorf("order id: %w", err)
	}
	order := menu.Order{
		ID:         id,
		UserID:     userID,
		Lines:      lines,
		TotalMinor: menu.CartTotal(lines),
		CreatedAt:  g.clock.Now(),
	}
	items, err := json.Marshal(lines)
	if err != nil {
		return menu.Order{}, fmt.Errorf("marshal order items: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO orders (id, user_id, items, total, created_at) VALUES ($1, $2, $3, $4, $5)",
		order.ID, order.UserID, items, order.TotalMinor, order.CreatedAt,
	); err != nil {
		return menu.Order{}, fmt.Errorf("insert order: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM cart WHERE user_id = $1", userID); err != nil {
		return menu.Order{}, fmt.Errorf("clear cart: %w", err)
	}
	return order, nil
}

func collectCart(rows pgx.Rows) ([]menu.CartLine, error) {
	defer rows.Close()
	var out []menu.CartLine
	for rows.Next() {
		var l menu.CartLine
		if err := rows.Scan(&l.UserID, &l.ItemID, &l.RestaurantID, &l.IsWine, &l.Name, &l.PriceMinor, &l.Count); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	return out, nil
}
