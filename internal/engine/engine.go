// Package engine computes the blur verdict for a site from budget and
// override state.
package engine

import (
	"time"

	"github.com/dimtab/dimtab/internal/budget"
	"github.com/dimtab/dimtab/internal/override"
	"github.com/dimtab/dimtab/internal/session"
	"github.com/rs/zerolog"
)

// Verdict is the blur decision for one site at one instant.
type Verdict struct {
	ShouldBlur bool
	Elapsed    time.Duration
	Timeout    time.Duration
}

// Engine combines the budget ledger and the override window into a
// verdict. The threshold is hard: elapsed >= timeout blurs, with no
// hysteresis band. Flapping is prevented by the delivery layer's
// redundant-send suppression, not here.
type Engine struct {
	sessions *session.Tracker
	budgets  *budget.Store
	override *override.Window
	logger   zerolog.Logger
}

// NewEngine creates a blur decision engine.
func NewEngine(sessions *session.Tracker, budgets *budget.Store, ow *override.Window, logger zerolog.Logger) *Engine {
	return &Engine{
		sessions: sessions,
		budgets:  budgets,
		override: ow,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// VerdictFor evaluates the verdict for a site, fresh on every call.
// An active override forces ShouldBlur=false regardless of budget.
func (e *Engine) VerdictFor(siteKey string) Verdict {
	v := Verdict{
		Elapsed: e.sessions.CurrentElapsedFor(siteKey),
		Timeout: e.budgets.Timeout(),
	}

	if e.override.IsActive() {
		return v
	}

	v.ShouldBlur = v.Elapsed >= v.Timeout
	return v
}
