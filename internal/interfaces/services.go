package interfaces

import (
	"context"
	"time"

	"github.com/simokitafresh/database-sub001/internal/models"
)

// SyncRequest asks for coverage-assured rows for a set of symbols.
// Identity-count and range ceilings are enforced by the calling layer.
type SyncRequest struct {
	Symbols           []string
	From              time.Time
	To                time.Time
	RefetchWindowDays int // <0 means use the configured default
}

// SyncService is the coverage-assurance and synchronization engine.
type SyncService interface {
	// EnsureAndRead resolves renames, fills gaps from the provider, and
	// returns resolved rows per requested symbol. Failures are isolated: the
	// map always holds one entry per requested symbol, each carrying rows or
	// a structured failure.
	EnsureAndRead(ctx context.Context, req SyncRequest) map[string]*models.SymbolResult
}
