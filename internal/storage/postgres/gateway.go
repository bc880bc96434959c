// Package postgres is the persistence gateway: idempotent bulk upserts of the
// crawled catalog, the read projections served to the bot, the crawl run
// ledger and the cart/order tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/clock/system"
	"github.com/JakeFAU/menu-crawler/internal/id/uuid"
	"github.com/JakeFAU/menu-crawler/internal/menu"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNotFound is returned by single-row reads that match nothing.
var ErrNotFound = errors.New("not found")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the gateway uses. pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the clock used for order timestamps.
func WithClock(clock menu.Clock) Option {
	return func(g *Gateway) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithIDGenerator overrides the order id generator.
func WithIDGenerator(ids menu.IDGenerator) Option {
	return func(g *Gateway) {
		if ids != nil {
			g.ids = ids
		}
	}
}

// Gateway implements menu.Store and the bot-facing reads on Postgres.
type Gateway struct {
	pool   pool
	logger *zap.Logger
	clock  menu.Clock
	ids    menu.IDGenerator
}

// New connects a pgx pool and wraps it in a Gateway.
func New(ctx context.Context, cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, opts...)
}

// NewWithPool constructs a Gateway from an existing pool (primarily for testing).
func NewWithPool(p pool, opts ...Option) (*Gateway, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	g := &Gateway{
		pool:   p,
		logger: zap.NewNop(),
		clock:  system.New(),
		ids:    uuid.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Ping checks database connectivity.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (g *Gateway) Close() {
	if g == nil || g.pool == nil {
		return
	}
	g.pool.Close()
}

func tableFor(collection menu.Collection) (string, error) {
	table := collection.Table()
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}
