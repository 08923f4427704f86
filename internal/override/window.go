// Package override implements the temporary enforcement suspension
// window (grace period).
package override

import (
	"time"

	"github.com/dimtab/dimtab/internal/clock"
	"github.com/rs/zerolog"
)

// Window is the process-wide override state. While active, blur
// enforcement is suspended for every tab regardless of budget.
//
// Not internally synchronized; access is serialized by the controller.
type Window struct {
	end    time.Time
	clock  clock.Clock
	logger zerolog.Logger
}

// NewWindow creates an inactive override window.
func NewWindow(clk clock.Clock, logger zerolog.Logger) *Window {
	return &Window{
		clock:  clk,
		logger: logger.With().Str("component", "override").Logger(),
	}
}

// Activate opens (or replaces) the override window. Overrides do not
// stack: a new activation discards any remaining time from the prior one.
func (w *Window) Activate(duration time.Duration) {
	w.end = w.clock.Now().Add(duration)
	w.logger.Info().
		Dur("duration", duration).
		Time("until", w.end).
		Msg("Override window activated")
}

// IsActive reports whether the window is currently open.
func (w *Window) IsActive() bool {
	return w.clock.Now().Before(w.end)
}

// Remaining returns the time left in the window, zero when inactive.
func (w *Window) Remaining() time.Duration {
	remaining := w.end.Sub(w.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear explicitly ends the window. Used on expiry; safe when already
// inactive.
func (w *Window) Clear() {
	if w.IsActive() {
		w.logger.Info().Msg("Override window cleared")
	}
	w.end = time.Time{}
}
