package common

import "time"

// Default freshness TTLs for stored data
const (
	// FreshnessEOD is how long after publication a daily bar is still
	// considered current. It shifts "now" back when deciding which trading
	// day's bar storage is expected to hold, absorbing provider publication
	// lag after market close.
	FreshnessEOD = 6 * time.Hour
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
