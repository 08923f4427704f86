// Package session maps the single globally-active browser tab to an
// in-progress timing session and folds elapsed time into site budgets.
package session

import (
	"time"

	"github.com/dimtab/dimtab/internal/budget"
	"github.com/dimtab/dimtab/internal/clock"
	"github.com/dimtab/dimtab/internal/metrics"
	"github.com/dimtab/dimtab/internal/sitekey"
	"github.com/rs/zerolog"
)

// Session is an open-ended timing interval for the active tab's site.
type Session struct {
	TabID     int
	SiteKey   string
	StartedAt time.Time
}

// Tracker owns the active-tab state and at most one live Session.
//
// Exactly one tab is considered globally active at any time: the last tab
// reported active in a focused window. A Session exists only while that
// tab's site is tracked and some browser window has focus.
//
// Not internally synchronized; the controller serializes all access.
type Tracker struct {
	budgets      *budget.Store
	resolver     *sitekey.Resolver
	trackedSites []string
	clock        clock.Clock
	logger       zerolog.Logger

	activeTabID   int
	activeTabURL  string
	haveActiveTab bool
	windowFocused bool

	active *Session
}

// NewTracker creates a session tracker over the given budget store.
func NewTracker(budgets *budget.Store, resolver *sitekey.Resolver, trackedSites []string, clk clock.Clock, logger zerolog.Logger) *Tracker {
	return &Tracker{
		budgets:      budgets,
		resolver:     resolver,
		trackedSites: trackedSites,
		clock:        clk,
		logger:       logger.With().Str("component", "session").Logger(),
		// Until the browser reports otherwise, assume a window is focused
		// so the first tab-activated event can start tracking.
		windowFocused: true,
	}
}

// Activated handles a tab becoming the active tab in its window.
// Any session on the previously active tab ends first.
func (t *Tracker) Activated(tabID int, url string) {
	t.endActive("tab activated")

	t.activeTabID = tabID
	t.activeTabURL = url
	t.haveActiveTab = true

	t.tryStart()
}

// Updated handles a tab's content changing (navigation or load
// completion). Any session on that tab ends unconditionally, since the
// page identity may have changed; if the tab is still the globally
// active one, a fresh session starts when the new site qualifies.
func (t *Tracker) Updated(tabID int, url string) {
	if t.active != nil && t.active.TabID == tabID {
		t.endActive("tab content changed")
	}

	if t.haveActiveTab && t.activeTabID == tabID {
		t.activeTabURL = url
		t.tryStart()
	}
}

// Removed handles a tab closing.
func (t *Tracker) Removed(tabID int) {
	if t.active != nil && t.active.TabID == tabID {
		t.endActive("tab removed")
	}
	if t.haveActiveTab && t.activeTabID == tabID {
		t.haveActiveTab = false
		t.activeTabURL = ""
	}
}

// WindowFocusLost handles all browser windows losing focus. The active
// session ends; the active-tab memory is kept for when focus returns.
func (t *Tracker) WindowFocusLost() {
	t.windowFocused = false
	t.endActive("window focus lost")
}

// WindowFocusGained handles a browser window regaining focus with the
// given tab active in it.
func (t *Tracker) WindowFocusGained(tabID int, url string) {
	t.windowFocused = true
	t.Activated(tabID, url)
}

// Active returns the live session, or nil.
func (t *Tracker) Active() *Session {
	return t.active
}

// ActiveTab returns the globally active tab, if one is known.
func (t *Tracker) ActiveTab() (tabID int, url string, ok bool) {
	return t.activeTabID, t.activeTabURL, t.haveActiveTab
}

// CurrentElapsedFor returns banked budget time for a site plus the
// in-flight portion of a live session on that site. The in-flight
// component is never persisted until the session ends.
func (t *Tracker) CurrentElapsedFor(siteKey string) time.Duration {
	elapsed := t.budgets.Accumulated(siteKey)
	if t.active != nil && t.active.SiteKey == siteKey {
		elapsed += t.clock.Now().Sub(t.active.StartedAt)
	}
	return elapsed
}

// EndActive ends any live session, folding its elapsed time into the
// site budget. Safe to call when no session exists.
func (t *Tracker) EndActive() {
	t.endActive("explicit end")
}

func (t *Tracker) endActive(reason string) {
	if t.active == nil {
		return
	}

	elapsed := t.clock.Now().Sub(t.active.StartedAt)
	t.budgets.AddElapsed(t.active.SiteKey, elapsed)

	t.logger.Debug().
		Int("tab_id", t.active.TabID).
		Str("site", t.active.SiteKey).
		Dur("elapsed", elapsed).
		Str("reason", reason).
		Msg("Session ended")

	t.active = nil
}

// tryStart opens a session for the active tab when a window is focused
// and the tab's site resolves to a tracked site.
func (t *Tracker) tryStart() {
	if t.active != nil || !t.haveActiveTab || !t.windowFocused {
		return
	}

	key, ok := t.resolver.Resolve(t.activeTabURL)
	if !ok || !sitekey.IsTracked(key, t.trackedSites) {
		return
	}

	t.active = &Session{
		TabID:     t.activeTabID,
		SiteKey:   key,
		StartedAt: t.clock.Now(),
	}

	metrics.SessionsStarted.WithLabelValues(key).Inc()

	t.logger.Info().
		Int("tab_id", t.activeTabID).
		Str("site", key).
		Msg("Session started")
}
