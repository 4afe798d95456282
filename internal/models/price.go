// Package models defines data structures for the price sync service
package models

import (
	"fmt"
	"time"
)

// PriceRow is one stored end-of-day OHLCV row, keyed by (Symbol, Date).
// Rows are only constructed through NewPriceRow, which enforces the OHLC
// ordering and volume invariants, so an invalid row cannot exist in memory,
// let alone in storage.
type PriceRow struct {
	Symbol      string    `json:"symbol"`
	Date        time.Time `json:"date"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      int64     `json:"volume"`
	Source      string    `json:"source"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewPriceRow validates a candidate row and returns it normalized
// (date truncated to UTC midnight). Invariants:
// all prices > 0, low <= min(open, close), max(open, close) <= high,
// volume >= 0.
func NewPriceRow(symbol string, date time.Time, open, high, low, closePx float64, volume int64, source string) (PriceRow, error) {
	if symbol == "" {
		return PriceRow{}, fmt.Errorf("price row: empty symbol")
	}
	if date.IsZero() {
		return PriceRow{}, fmt.Errorf("price row %s: zero date", symbol)
	}
	if open <= 0 || high <= 0 || low <= 0 || closePx <= 0 {
		return PriceRow{}, fmt.Errorf("price row %s %s: non-positive price", symbol, date.Format(DateLayout))
	}
	if low > open || low > closePx {
		return PriceRow{}, fmt.Errorf("price row %s %s: low above open/close", symbol, date.Format(DateLayout))
	}
	if high < open || high < closePx {
		return PriceRow{}, fmt.Errorf("price row %s %s: high below open/close", symbol, date.Format(DateLayout))
	}
	if volume < 0 {
		return PriceRow{}, fmt.Errorf("price row %s %s: negative volume", symbol, date.Format(DateLayout))
	}
	return PriceRow{
		Symbol: symbol,
		Date:   DateOnly(date),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: volume,
		Source: source,
	}, nil
}

// ResolvedRow is a PriceRow attributed back to the symbol the caller asked
// for. SourceSymbol records the historical identity the row is stored under,
// which differs from Symbol on the old side of a rename.
type ResolvedRow struct {
	Symbol       string    `json:"symbol"`
	SourceSymbol string    `json:"source_symbol"`
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	Source       string    `json:"source"`
}

// FetchSegment is a date-bounded slice of a request under a single historical
// identity. Derived by the resolver, never persisted.
type FetchSegment struct {
	Symbol string
	From   time.Time
	To     time.Time
}

// CoverageResult summarizes stored rows for one identity over a range.
type CoverageResult struct {
	FirstDate       time.Time `json:"first_date"`
	LastDate        time.Time `json:"last_date"`
	RowCount        int       `json:"row_count"`
	WeekdayRowCount int       `json:"-"`
	HasGap          bool      `json:"has_gap"`
}

// ResolveGap sets HasGap by comparing stored weekday rows against the
// business-day calendar. Only the range up to the last stored row counts:
// rows not yet published at the tail are a staleness matter, not a gap, and
// trigger a frontier fetch rather than a full-range one. Weekend rows (if a
// source ever produces them) never mask a missing weekday.
func (c *CoverageResult) ResolveGap(from, to time.Time) {
	if c.RowCount == 0 {
		c.HasGap = BusinessDaysBetween(from, to) > 0
		return
	}
	c.HasGap = c.WeekdayRowCount < BusinessDaysBetween(from, MinDate(to, c.LastDate))
}

// RowRejection reports a candidate row dropped at merge time for violating
// the PriceRow invariants. The rest of the batch is unaffected.
type RowRejection struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}
