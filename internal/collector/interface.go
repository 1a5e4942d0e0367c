// Package collector fetches historical bars from market data providers.
package collector

import (
	"context"
	"time"

	"github.com/newthinker/crossbt/internal/core"
)

// Collector defines the interface for historical bar sources
type Collector interface {
	// Name identifies the provider, e.g. "yahoo"
	Name() string

	// FetchHistory returns bars for symbol in [start, end]. Order and
	// uniqueness are not guaranteed; callers normalize.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error)
}

// InRange reports whether t falls within [start, end]. A zero bound is open.
func InRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
