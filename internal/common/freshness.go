package common

import "time"

// Default freshness windows per view
const (
	FreshnessLatest     = 60 * time.Second
	FreshnessDsex       = 60 * time.Second
	FreshnessTop30      = 60 * time.Second
	FreshnessHistorical = 6 * time.Hour // past sessions never change, only today's row does
)

// IsFreshAt returns true if updated is within ttl of now. A zero timestamp is never fresh.
func IsFreshAt(updated time.Time, ttl time.Duration, now time.Time) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
