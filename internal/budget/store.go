// Package budget keeps the per-site cumulative time ledger with lazy
// daily reset.
package budget

import (
	"time"

	"github.com/dimtab/dimtab/internal/clock"
	"github.com/dimtab/dimtab/internal/metrics"
	"github.com/rs/zerolog"
)

const dayFormat = "2006-01-02"

// Entry is the accumulated budget state for one site.
type Entry struct {
	SiteKey           string
	AccumulatedMillis int64
	LastResetDay      string
}

// Store is the per-site cumulative-time ledger. Entries are created
// lazily on first observation and zeroed whenever the calendar day
// changes, checked on every read and write rather than by a timer.
//
// The store is not internally synchronized; the owning controller
// serializes all access on its single logical thread of control.
type Store struct {
	entries map[string]*Entry
	timeout time.Duration
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewStore creates a budget store with the given daily threshold.
func NewStore(timeout time.Duration, clk clock.Clock, logger zerolog.Logger) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		timeout: timeout,
		clock:   clk,
		logger:  logger.With().Str("component", "budget").Logger(),
	}
}

// Get returns the entry for a site, creating it at zero if absent.
// The daily reset check runs before the entry is returned.
func (s *Store) Get(siteKey string) Entry {
	return *s.entry(siteKey)
}

// AddElapsed folds elapsed focused time into a site's budget.
func (s *Store) AddElapsed(siteKey string, elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	e := s.entry(siteKey)
	e.AccumulatedMillis += elapsed.Milliseconds()

	metrics.SessionSecondsAccumulated.WithLabelValues(siteKey).Add(elapsed.Seconds())

	s.logger.Debug().
		Str("site", siteKey).
		Int64("added_ms", elapsed.Milliseconds()).
		Int64("accumulated_ms", e.AccumulatedMillis).
		Msg("Folded elapsed time into budget")
}

// Accumulated returns the banked (not in-flight) time for a site.
func (s *Store) Accumulated(siteKey string) time.Duration {
	return time.Duration(s.entry(siteKey).AccumulatedMillis) * time.Millisecond
}

// Timeout returns the configured budget threshold, constant for all sites.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// entry fetches or lazily creates an entry, applying the daily reset.
func (s *Store) entry(siteKey string) *Entry {
	today := s.clock.Now().Format(dayFormat)

	e, ok := s.entries[siteKey]
	if !ok {
		e = &Entry{SiteKey: siteKey, LastResetDay: today}
		s.entries[siteKey] = e
		return e
	}

	if e.LastResetDay != today {
		s.logger.Info().
			Str("site", siteKey).
			Str("last_reset", e.LastResetDay).
			Str("today", today).
			Int64("discarded_ms", e.AccumulatedMillis).
			Msg("Daily budget reset")
		e.AccumulatedMillis = 0
		e.LastResetDay = today
		metrics.BudgetResets.Inc()
	}

	return e
}
