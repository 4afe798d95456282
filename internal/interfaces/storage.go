// Package interfaces defines service contracts for the price sync service
package interfaces

import (
	"context"
	"time"

	"github.com/simokitafresh/database-sub001/internal/models"
)

// StorageManager coordinates the storage backend.
type StorageManager interface {
	Prices() PriceStore
	Symbols() SymbolStore

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	Close()
}

// PriceStore handles price row persistence and per-symbol coordination.
type PriceStore interface {
	// Coverage reports stored-row statistics for one identity over [from, to].
	// HasGap is resolved against the Mon-Fri business-day calendar.
	Coverage(ctx context.Context, symbol string, from, to time.Time) (*models.CoverageResult, error)

	// WithSymbolLock runs fn inside a transaction holding an exclusive
	// advisory lock derived from symbol. The lock is released when the
	// transaction ends: commit on success, rollback when fn errors. Failing
	// to acquire the lock within the store's configured bound returns
	// models.ErrLockTimeout.
	WithSymbolLock(ctx context.Context, symbol string, fn func(ctx context.Context, tx PriceTx) error) error

	// ResolvedRead returns rows for the given segments in ascending date
	// order, attributing each row to requested while recording the stored
	// identity as provenance.
	ResolvedRead(ctx context.Context, requested string, segments []models.FetchSegment) ([]models.ResolvedRow, error)
}

// PriceTx is the transaction-scoped view handed to WithSymbolLock callbacks.
type PriceTx interface {
	// Coverage re-checks coverage inside the locked transaction.
	Coverage(ctx context.Context, symbol string, from, to time.Time) (*models.CoverageResult, error)

	// UpsertRows writes validated rows with insert-or-overwrite semantics
	// keyed by (symbol, date), refreshing all value columns and last_updated.
	// Returns the number of rows written.
	UpsertRows(ctx context.Context, rows []models.PriceRow) (int, error)
}

// SymbolStore provides read access to registered symbols and renames.
type SymbolStore interface {
	// GetSymbol returns the registered symbol, or nil when unregistered.
	GetSymbol(ctx context.Context, symbol string) (*models.Symbol, error)

	// GetRenameTo returns the rename record whose new identity is symbol, or
	// nil when none exists. Observing more than one applicable record returns
	// models.ErrRenameConflict.
	GetRenameTo(ctx context.Context, symbol string) (*models.RenameRecord, error)
}
