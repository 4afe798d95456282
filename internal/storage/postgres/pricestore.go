package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simokitafresh/database-sub001/internal/common"
	"github.com/simokitafresh/database-sub001/internal/interfaces"
	"github.com/simokitafresh/database-sub001/internal/models"
)

// lockTimeoutSQLState is Postgres's lock_not_available error code.
const lockTimeoutSQLState = "55P03"

// PriceStore persists OHLCV rows and provides per-symbol mutual exclusion.
type PriceStore struct {
	pool        *pgxpool.Pool
	logger      *common.Logger
	lockTimeout time.Duration
}

// NewPriceStore creates a price store over the given pool.
func NewPriceStore(pool *pgxpool.Pool, logger *common.Logger, lockTimeout time.Duration) *PriceStore {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &PriceStore{
		pool:        pool,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

// lockKey derives the stable 64-bit advisory lock key for an identity.
func lockKey(symbol string) int64 {
	return int64(xxhash.Sum64String(symbol))
}

const coverageSQL = `
	SELECT MIN(date), MAX(date), COUNT(*),
	       COUNT(*) FILTER (WHERE EXTRACT(ISODOW FROM date) < 6)
	FROM prices
	WHERE symbol = $1 AND date BETWEEN $2 AND $3`

// coverage runs the coverage query against pool or transaction alike.
func coverage(ctx context.Context, q querier, symbol string, from, to time.Time) (*models.CoverageResult, error) {
	var first, last *time.Time
	var count, weekdayCount int

	err := q.QueryRow(ctx, coverageSQL, symbol, models.DateOnly(from), models.DateOnly(to)).
		Scan(&first, &last, &count, &weekdayCount)
	if err != nil {
		return nil, fmt.Errorf("coverage query for %s: %w", symbol, err)
	}

	cov := &models.CoverageResult{
		RowCount:        count,
		WeekdayRowCount: weekdayCount,
	}
	if first != nil {
		cov.FirstDate = models.DateOnly(*first)
	}
	if last != nil {
		cov.LastDate = models.DateOnly(*last)
	}
	cov.ResolveGap(from, to)

	return cov, nil
}

// Coverage reports stored-row statistics for one identity over [from, to].
func (s *PriceStore) Coverage(ctx context.Context, symbol string, from, to time.Time) (*models.CoverageResult, error) {
	return coverage(ctx, s.pool, symbol, from, to)
}

// WithSymbolLock runs fn in a transaction holding pg_advisory_xact_lock on
// the identity's hash. The lock is never taken in process memory, so mutual
// exclusion holds across every instance sharing the database, and the
// transaction scope means commit and rollback both release it: a crashed
// caller cannot strand the lock. Waiting is bounded by SET LOCAL
// lock_timeout; hitting the bound surfaces models.ErrLockTimeout.
func (s *PriceStore) WithSymbolLock(ctx context.Context, symbol string, fn func(ctx context.Context, tx interfaces.PriceTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin lock transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// SET LOCAL takes no bind parameters; the value is an integer of our own
	// making, not caller input.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(symbol)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockTimeoutSQLState {
			return fmt.Errorf("%w: %s", models.ErrLockTimeout, symbol)
		}
		return fmt.Errorf("acquire lock for %s: %w", symbol, err)
	}

	if err := fn(ctx, &priceTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lock transaction: %w", err)
	}
	return nil
}

const segmentReadSQL = `
	SELECT symbol, date, open, high, low, close, volume, source
	FROM prices
	WHERE symbol = $1 AND date BETWEEN $2 AND $3
	ORDER BY date`

// ResolvedRead returns rows for the segments in ascending date order. Each
// row is attributed to the requested symbol with the stored identity kept as
// provenance; segment boundaries already encode the rename effective-date
// rule, so a row the day before the effective date reads from the old
// identity and the effective date itself from the new one.
func (s *PriceStore) ResolvedRead(ctx context.Context, requested string, segments []models.FetchSegment) ([]models.ResolvedRow, error) {
	var out []models.ResolvedRow
	for _, seg := range segments {
		rows, err := s.pool.Query(ctx, segmentReadSQL, seg.Symbol, seg.From, seg.To)
		if err != nil {
			return nil, fmt.Errorf("resolved read for %s: %w", seg.Symbol, err)
		}

		for rows.Next() {
			var r models.ResolvedRow
			var date time.Time
			if err := rows.Scan(&r.SourceSymbol, &date, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.Source); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan resolved row: %w", err)
			}
			r.Symbol = requested
			r.Date = models.DateOnly(date)
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("resolved read for %s: %w", seg.Symbol, err)
		}
		rows.Close()
	}
	return out, nil
}

// priceTx is the transaction-scoped view handed to WithSymbolLock callbacks.
type priceTx struct {
	tx pgx.Tx
}

func (t *priceTx) Coverage(ctx context.Context, symbol string, from, to time.Time) (*models.CoverageResult, error) {
	return coverage(ctx, t.tx, symbol, from, to)
}

const upsertSQL = `
	INSERT INTO prices (symbol, date, open, high, low, close, volume, source, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	ON CONFLICT (symbol, date) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		source = EXCLUDED.source,
		last_updated = now()`

// UpsertRows writes validated rows with last-write-wins semantics keyed by
// (symbol, date). All rows ride the surrounding transaction, so the batch
// commits or rolls back as a unit.
func (t *priceTx) UpsertRows(ctx context.Context, rows []models.PriceRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertSQL, r.Symbol, r.Date, r.Open, r.High, r.Low, r.Close, r.Volume, r.Source)
	}

	br := t.tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("upsert batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close upsert batch: %w", err)
	}

	return len(rows), nil
}

// Ensure interfaces are implemented
var (
	_ interfaces.PriceStore = (*PriceStore)(nil)
	_ interfaces.PriceTx    = (*priceTx)(nil)
)
