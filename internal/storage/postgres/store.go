// Package postgres implements storage on PostgreSQL. Postgres is load-bearing
// here: per-symbol mutual exclusion rides on transaction-scoped advisory
// locks, which release automatically on commit or rollback.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simokitafresh/database-sub001/internal/common"
	"github.com/simokitafresh/database-sub001/internal/interfaces"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx, letting query helpers
// run inside and outside the locked transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store coordinates the Postgres-backed stores.
type Store struct {
	pool    *pgxpool.Pool
	logger  *common.Logger
	prices  *PriceStore
	symbols *SymbolStore
}

// NewStore connects to Postgres and wires the stores. lockTimeout bounds how
// long a caller may wait on another caller's fetch-and-merge cycle.
func NewStore(ctx context.Context, dsn string, maxConns int, lockTimeout time.Duration, logger *common.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		pool:   pool,
		logger: logger,
	}
	s.prices = NewPriceStore(pool, logger, lockTimeout)
	s.symbols = NewSymbolStore(pool, logger)

	return s, nil
}

// Prices returns the price row store.
func (s *Store) Prices() interfaces.PriceStore { return s.prices }

// Symbols returns the symbol/rename store.
func (s *Store) Symbols() interfaces.SymbolStore { return s.symbols }

// Migrate creates the schema if it does not exist. The unique index on
// symbol_renames.new_symbol is what makes rename resolution single-hop; the
// check constraints back up the PriceRow constructor so an invalid row cannot
// arrive even through out-of-band writes.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			symbol     TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			exchange   TEXT NOT NULL DEFAULT '',
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			first_date DATE,
			last_date  DATE
		)`,
		`CREATE TABLE IF NOT EXISTS symbol_renames (
			old_symbol     TEXT NOT NULL,
			new_symbol     TEXT NOT NULL UNIQUE,
			effective_date DATE NOT NULL,
			PRIMARY KEY (old_symbol, new_symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			symbol       TEXT NOT NULL,
			date         DATE NOT NULL,
			open         DOUBLE PRECISION NOT NULL CHECK (open > 0),
			high         DOUBLE PRECISION NOT NULL CHECK (high > 0),
			low          DOUBLE PRECISION NOT NULL CHECK (low > 0),
			close        DOUBLE PRECISION NOT NULL CHECK (close > 0),
			volume       BIGINT NOT NULL CHECK (volume >= 0),
			source       TEXT NOT NULL DEFAULT '',
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (symbol, date),
			CHECK (low <= open AND low <= close AND high >= open AND high >= close)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	s.logger.Debug().Msg("Schema migration complete")
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ensure Store implements StorageManager
var _ interfaces.StorageManager = (*Store)(nil)
