package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simokitafresh/database-sub001/internal/common"
	"github.com/simokitafresh/database-sub001/internal/interfaces"
	"github.com/simokitafresh/database-sub001/internal/models"
)

// Config tunes the engine.
type Config struct {
	// Freshness shifts "now" back when deciding which trading day's bar
	// storage is expected to hold, absorbing provider publication lag.
	Freshness time.Duration
	// RefetchWindowDays is the default trailing window re-fetched regardless
	// of detected gaps, to absorb late corporate-action adjustments.
	RefetchWindowDays int
	// MaxConcurrency bounds symbols processed in parallel per request.
	MaxConcurrency int
	// RequestTimeout is the overall deadline for one EnsureAndRead run.
	// Zero disables it.
	RequestTimeout time.Duration
}

// Service implements SyncService.
type Service struct {
	storage interfaces.StorageManager
	feed    interfaces.PriceFeedClient
	logger  *common.Logger
	cfg     Config
	now     func() time.Time
}

// NewService creates a new sync service.
func NewService(storage interfaces.StorageManager, feed interfaces.PriceFeedClient, logger *common.Logger, cfg Config) *Service {
	if cfg.Freshness <= 0 {
		cfg.Freshness = common.FreshnessEOD
	}
	if cfg.RefetchWindowDays < 0 {
		cfg.RefetchWindowDays = 0
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	return &Service{
		storage: storage,
		feed:    feed,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// EnsureAndRead resolves, synchronizes, and reads rows for each requested
// symbol. Failures are isolated per symbol: the returned map always holds one
// entry per distinct normalized symbol, carrying rows or a structured
// failure. Symbols still unfinished when the overall deadline expires come
// back as timed_out while completed ones keep their results.
func (s *Service) EnsureAndRead(ctx context.Context, req interfaces.SyncRequest) map[string]*models.SymbolResult {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	refetchDays := req.RefetchWindowDays
	if refetchDays < 0 {
		refetchDays = s.cfg.RefetchWindowDays
	}

	runLog := common.Logger{Logger: s.logger.With().Str("run_id", uuid.NewString()).Logger()}

	// Normalize and deduplicate while preserving request order.
	var symbols []string
	seen := make(map[string]struct{})
	for _, raw := range req.Symbols {
		sym := models.NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}

	from := models.DateOnly(req.From)
	to := models.DateOnly(req.To)

	results := make(map[string]*models.SymbolResult, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for _, symbol := range symbols {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Deadline hit before this symbol started.
			mu.Lock()
			results[symbol] = &models.SymbolResult{
				Symbol:  symbol,
				Failure: &models.SymbolFailure{Kind: models.FailureTimeout, Message: "orchestration deadline exceeded"},
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			res := s.ensureSymbol(ctx, runLog, symbol, from, to, refetchDays)
			mu.Lock()
			results[symbol] = res
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()

	return results
}

// ensureSymbol runs the full resolve -> lock -> check -> fetch -> merge ->
// read cycle for one requested symbol.
func (s *Service) ensureSymbol(ctx context.Context, log common.Logger, symbol string, from, to time.Time, refetchDays int) *models.SymbolResult {
	res := &models.SymbolResult{Symbol: symbol}

	fail := func(err error) *models.SymbolResult {
		f := models.ClassifyFailure(err)
		log.Warn().Str("symbol", symbol).Str("kind", string(f.Kind)).Err(err).Msg("Symbol sync failed")
		res.Rows = nil
		res.Failure = &f
		return res
	}

	rename, err := s.storage.Symbols().GetRenameTo(ctx, symbol)
	if err != nil {
		return fail(fmt.Errorf("rename lookup: %w", err))
	}
	segments := ResolveSegments(symbol, from, to, rename)

	// A registered but inactive symbol is served from storage only.
	fetchable := true
	if sym, err := s.storage.Symbols().GetSymbol(ctx, symbol); err != nil {
		return fail(fmt.Errorf("symbol lookup: %w", err))
	} else if sym != nil && !sym.Active {
		fetchable = false
		log.Debug().Str("symbol", symbol).Msg("Symbol inactive, skipping fetch")
	}

	if fetchable {
		for _, seg := range segments {
			rejected, err := s.ensureSegment(ctx, log, seg, refetchDays)
			res.Rejected = append(res.Rejected, rejected...)
			if err != nil {
				return fail(err)
			}
		}
	}

	rows, err := s.storage.Prices().ResolvedRead(ctx, symbol, segments)
	if err != nil {
		return fail(fmt.Errorf("resolved read: %w", err))
	}
	res.Rows = rows

	return res
}

// ensureSegment guarantees coverage for one identity sub-range. The lock is
// only taken when the unlocked pre-check says a fetch is due, and coverage is
// re-checked under the lock: another caller may have completed the fetch
// while this one waited.
func (s *Service) ensureSegment(ctx context.Context, log common.Logger, seg models.FetchSegment, refetchDays int) ([]models.RowRejection, error) {
	cov, err := s.storage.Prices().Coverage(ctx, seg.Symbol, seg.From, seg.To)
	if err != nil {
		return nil, fmt.Errorf("coverage check: %w", err)
	}
	if !s.needsFetch(cov, seg) {
		return nil, nil
	}

	var rejected []models.RowRejection
	err = s.storage.Prices().WithSymbolLock(ctx, seg.Symbol, func(ctx context.Context, tx interfaces.PriceTx) error {
		cov, err := tx.Coverage(ctx, seg.Symbol, seg.From, seg.To)
		if err != nil {
			return fmt.Errorf("locked coverage re-check: %w", err)
		}
		if !s.needsFetch(cov, seg) {
			log.Debug().Str("symbol", seg.Symbol).Msg("Coverage satisfied while waiting for lock")
			return nil
		}

		fetchFrom := s.fetchStart(cov, seg, refetchDays)
		bars, err := s.feed.GetEOD(ctx, seg.Symbol, fetchFrom, seg.To)
		if err != nil {
			return err
		}

		rows, rej := s.validateBars(seg.Symbol, bars)
		rejected = rej
		for _, r := range rej {
			log.Warn().
				Str("symbol", r.Symbol).
				Str("date", r.Date.Format(models.DateLayout)).
				Str("reason", r.Reason).
				Msg("Rejected invalid row at merge")
		}

		if len(rows) > 0 {
			n, err := tx.UpsertRows(ctx, rows)
			if err != nil {
				return fmt.Errorf("upsert: %w", err)
			}
			log.Info().
				Str("symbol", seg.Symbol).
				Str("from", fetchFrom.Format(models.DateLayout)).
				Str("to", seg.To.Format(models.DateLayout)).
				Int("rows", n).
				Msg("Merged fetched rows")
		}
		return nil
	})
	if err != nil {
		return rejected, err
	}

	return rejected, nil
}

// needsFetch decides whether a segment's coverage is acceptable as stored.
// Covered means: no business-day gap, and the latest stored row reaches the
// most recent trading day the provider can be expected to have published,
// bounded by the requested end.
func (s *Service) needsFetch(cov *models.CoverageResult, seg models.FetchSegment) bool {
	if models.BusinessDaysBetween(seg.From, seg.To) == 0 {
		return false
	}
	if cov.RowCount == 0 || cov.HasGap {
		return true
	}
	expected := models.LatestBusinessDayOnOrBefore(
		models.MinDate(seg.To, models.DateOnly(s.now().Add(-s.cfg.Freshness))))
	return cov.LastDate.Before(expected)
}

// fetchStart picks the fetch window start. With a gap anywhere in the range
// the whole segment is requested; otherwise only the frontier beyond the last
// stored row, widened back by the trailing refetch window so late
// corporate-action adjustments get re-absorbed.
func (s *Service) fetchStart(cov *models.CoverageResult, seg models.FetchSegment, refetchDays int) time.Time {
	if cov.RowCount == 0 || cov.HasGap {
		return seg.From
	}
	return models.MaxDate(seg.From, cov.LastDate.AddDate(0, 0, -refetchDays))
}

// validateBars constructs storable rows from provider bars, dropping and
// reporting the ones that violate the OHLC/volume invariants. A bad row
// never fails the rest of the batch.
func (s *Service) validateBars(symbol string, bars []models.ProviderBar) ([]models.PriceRow, []models.RowRejection) {
	rows := make([]models.PriceRow, 0, len(bars))
	var rejected []models.RowRejection
	for _, b := range bars {
		row, err := models.NewPriceRow(symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, s.feed.Source())
		if err != nil {
			rejected = append(rejected, models.RowRejection{
				Symbol: symbol,
				Date:   models.DateOnly(b.Date),
				Reason: err.Error(),
			})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rejected
}

// Ensure Service implements SyncService
var _ interfaces.SyncService = (*Service)(nil)
