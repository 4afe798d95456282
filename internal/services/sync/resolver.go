// Package sync implements the coverage-assurance and synchronization engine:
// resolve historical identity, lock, detect gaps, fetch, and merge.
package sync

import (
	"time"

	"github.com/simokitafresh/database-sub001/internal/models"
)

// ResolveSegments decomposes a (symbol, range) request into one or two
// date-bounded fetch segments, each under the identity valid for its
// sub-range. rename is the at-most-one record targeting symbol (nil when
// none). The effective date itself belongs to the new identity: date >= ED
// resolves under the new symbol, date < ED under the old one.
//
// Single-hop is a hard assumption; duplicate-target detection happens at the
// rename lookup, so by the time a record reaches here there is at most one.
func ResolveSegments(symbol string, from, to time.Time, rename *models.RenameRecord) []models.FetchSegment {
	from, to = models.DateOnly(from), models.DateOnly(to)

	if rename == nil || rename.NewSymbol != symbol {
		return []models.FetchSegment{{Symbol: symbol, From: from, To: to}}
	}

	ed := models.DateOnly(rename.EffectiveDate)
	switch {
	case !ed.After(from):
		// Rename already in effect for the whole range.
		return []models.FetchSegment{{Symbol: symbol, From: from, To: to}}
	case ed.After(to):
		// Rename not yet in effect anywhere in the range.
		return []models.FetchSegment{{Symbol: rename.OldSymbol, From: from, To: to}}
	default:
		return []models.FetchSegment{
			{Symbol: rename.OldSymbol, From: from, To: ed.AddDate(0, 0, -1)},
			{Symbol: symbol, From: ed, To: to},
		}
	}
}
