package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simokitafresh/database-sub001/internal/common"
	"github.com/simokitafresh/database-sub001/internal/interfaces"
	"github.com/simokitafresh/database-sub001/internal/models"
)

// SymbolStore reads the symbol registry and rename history.
type SymbolStore struct {
	pool   *pgxpool.Pool
	logger *common.Logger
}

// NewSymbolStore creates a symbol store over the given pool.
func NewSymbolStore(pool *pgxpool.Pool, logger *common.Logger) *SymbolStore {
	return &SymbolStore{pool: pool, logger: logger}
}

// GetSymbol returns the registry entry for symbol, or nil when unregistered.
func (s *SymbolStore) GetSymbol(ctx context.Context, symbol string) (*models.Symbol, error) {
	var sym models.Symbol
	var first, last *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT symbol, name, exchange, active, first_date, last_date
		 FROM symbols WHERE symbol = $1`, symbol).
		Scan(&sym.Symbol, &sym.Name, &sym.Exchange, &sym.Active, &first, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol lookup for %s: %w", symbol, err)
	}

	if first != nil {
		sym.FirstDate = models.DateOnly(*first)
	}
	if last != nil {
		sym.LastDate = models.DateOnly(*last)
	}
	return &sym, nil
}

// GetRenameTo returns the rename record whose new identity is symbol, or nil
// when the symbol was never the target of a rename. More than one matching
// record would make resolution ambiguous, so that state is surfaced as
// models.ErrRenameConflict rather than picking one arbitrarily. The schema's
// unique index on new_symbol prevents it, but the read path still guards
// against data loaded before the index existed.
func (s *SymbolStore) GetRenameTo(ctx context.Context, symbol string) (*models.RenameRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT old_symbol, new_symbol, effective_date
		 FROM symbol_renames WHERE new_symbol = $1`, symbol)
	if err != nil {
		return nil, fmt.Errorf("rename lookup for %s: %w", symbol, err)
	}
	defer rows.Close()

	var records []models.RenameRecord
	for rows.Next() {
		var rec models.RenameRecord
		var ed time.Time
		if err := rows.Scan(&rec.OldSymbol, &rec.NewSymbol, &ed); err != nil {
			return nil, fmt.Errorf("scan rename record: %w", err)
		}
		rec.EffectiveDate = models.DateOnly(ed)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rename lookup for %s: %w", symbol, err)
	}

	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return &records[0], nil
	default:
		return nil, fmt.Errorf("%w: %d records target %s", models.ErrRenameConflict, len(records), symbol)
	}
}

// Ensure SymbolStore implements the interface
var _ interfaces.SymbolStore = (*SymbolStore)(nil)
