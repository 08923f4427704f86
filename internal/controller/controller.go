// Package controller owns all tracking and enforcement state: the budget
// ledger, the session tracker, the override window, the renderer delivery
// queue, and the heartbeat tying them together.
package controller

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dimtab/dimtab/internal/budget"
	"github.com/dimtab/dimtab/internal/clock"
	"github.com/dimtab/dimtab/internal/config"
	"github.com/dimtab/dimtab/internal/delivery"
	"github.com/dimtab/dimtab/internal/engine"
	"github.com/dimtab/dimtab/internal/heartbeat"
	"github.com/dimtab/dimtab/internal/metrics"
	"github.com/dimtab/dimtab/internal/override"
	"github.com/dimtab/dimtab/internal/session"
	"github.com/dimtab/dimtab/internal/sitekey"
	"github.com/rs/zerolog"
)

// Status is the state reported for one tab on the query interface.
type Status struct {
	Tracked           bool
	SiteKey           string
	Elapsed           time.Duration
	Timeout           time.Duration
	ShouldBlur        bool
	OverrideActive    bool
	OverrideRemaining time.Duration
}

// Settings is handed to a renderer when it attaches, so it can run its
// own self-check cadence and transition.
type Settings struct {
	RendererTickMs  int     `json:"rendererTickMs"`
	BlurProbability float64 `json:"blurProbability"`
	IntensityMin    int     `json:"intensityMin"`
	IntensityMax    int     `json:"intensityMax"`
}

// Controller is the focus/time-tracking and blur-decision controller.
//
// All state mutation is serialized through one mutex: browser event
// handlers, heartbeat ticks, override expiry, and bridge requests form a
// single logical thread of control. Handlers re-validate state on entry
// because ordering between asynchronous callbacks is not guaranteed.
type Controller struct {
	mu sync.Mutex

	cfg    *config.Config
	clock  clock.Clock
	logger zerolog.Logger

	resolver  *sitekey.Resolver
	budgets   *budget.Store
	sessions  *session.Tracker
	override  *override.Window
	engine    *engine.Engine
	heartbeat *heartbeat.Scheduler
	queue     *delivery.Queue

	// tabs maps every known tab to its last reported address, so the
	// override expiry sweep can re-evaluate tabs beyond the active one.
	tabs map[int]string

	overrideTimer *time.Timer
}

// New creates a controller from configuration.
func New(cfg *config.Config, clk clock.Clock, logger zerolog.Logger) (*Controller, error) {
	resolver, err := sitekey.NewResolver(sitekey.DefaultCacheSize, logger)
	if err != nil {
		return nil, err
	}
	queue, err := delivery.NewQueue(delivery.DefaultStateCacheSize, logger)
	if err != nil {
		return nil, err
	}

	budgets := budget.NewStore(cfg.Timeout(), clk, logger)
	sessions := session.NewTracker(budgets, resolver, cfg.TrackedSites, clk, logger)
	ow := override.NewWindow(clk, logger)

	c := &Controller{
		cfg:      cfg,
		clock:    clk,
		logger:   logger.With().Str("component", "controller").Logger(),
		resolver: resolver,
		budgets:  budgets,
		sessions: sessions,
		override: ow,
		engine:   engine.NewEngine(sessions, budgets, ow, logger),
		queue:    queue,
		tabs:     make(map[int]string),
	}
	c.heartbeat = heartbeat.NewScheduler(cfg.ControllerTick(), c.onTick, logger)

	return c, nil
}

// OnTabActivated handles a tab becoming active within its window.
func (c *Controller) OnTabActivated(tabID int, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tabs[tabID] = url
	c.sessions.Activated(tabID, url)
	c.syncHeartbeat()
	c.evaluateActive()
}

// OnTabUpdated handles a tab navigating or finishing a load. The new
// page starts unblurred, so the tab's delivery state is cleared before
// re-evaluation.
func (c *Controller) OnTabUpdated(tabID int, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tabs[tabID] = url
	c.queue.ClearState(tabID)
	c.sessions.Updated(tabID, url)
	c.syncHeartbeat()
	c.evaluateActive()
}

// OnTabRemoved handles a tab closing.
func (c *Controller) OnTabRemoved(tabID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tabs, tabID)
	c.sessions.Removed(tabID)
	c.queue.Remove(tabID)
	c.syncHeartbeat()
}

// OnWindowFocusChanged handles browser window focus transitions. When
// focus is gained, tabID/url identify the active tab of the newly
// focused window; when lost they are ignored.
func (c *Controller) OnWindowFocusChanged(focused bool, tabID int, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if focused {
		c.tabs[tabID] = url
		c.sessions.WindowFocusGained(tabID, url)
	} else {
		c.sessions.WindowFocusLost()
	}
	c.syncHeartbeat()
	c.evaluateActive()
}

// AttachRenderer registers a tab's renderer and replays any commands
// queued while it was not attached.
func (c *Controller) AttachRenderer(tabID int, conn delivery.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Attach(tabID, conn)
}

// DetachRenderer removes a tab's renderer conn. Stale detaches (for a
// conn that has already been replaced) are ignored.
func (c *Controller) DetachRenderer(tabID int, conn delivery.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Detach(tabID, conn)
}

// OnRendererStateReport receives a renderer's advisory self-report. It
// never feeds enforcement; a mismatch against the last commanded state
// is only logged.
func (c *Controller) OnRendererStateReport(tabID int, blurred bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if commanded, known := c.queue.LastCommanded(tabID); known && commanded != blurred {
		c.logger.Debug().
			Int("tab_id", tabID).
			Bool("reported", blurred).
			Bool("commanded", commanded).
			Msg("Renderer state report differs from last command")
	}
}

// RequestOverride activates the grace period. A prior window is replaced,
// never extended. Every tab currently flagged blurred gets an immediate
// remove command, independent of the next heartbeat tick.
func (c *Controller) RequestOverride() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := c.cfg.OverrideDuration()
	if duration <= 0 {
		return false
	}

	c.override.Activate(duration)
	metrics.OverridesRequested.Inc()

	if c.overrideTimer != nil {
		c.overrideTimer.Stop()
	}
	c.overrideTimer = time.AfterFunc(duration, c.onOverrideExpired)

	for _, tabID := range c.queue.BlurredTabs() {
		c.queue.Deliver(tabID, delivery.Command{Kind: delivery.KindRemove})
	}

	return true
}

// GetStatus reports tracking state for a tab.
func (c *Controller) GetStatus(tabID int) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		Timeout:           c.budgets.Timeout(),
		OverrideActive:    c.override.IsActive(),
		OverrideRemaining: c.override.Remaining(),
	}

	url, known := c.tabs[tabID]
	if !known {
		return status
	}

	key, ok := c.resolver.Resolve(url)
	if !ok || !sitekey.IsTracked(key, c.cfg.TrackedSites) {
		return status
	}

	verdict := c.engine.VerdictFor(key)
	status.Tracked = true
	status.SiteKey = key
	status.Elapsed = verdict.Elapsed
	status.ShouldBlur = verdict.ShouldBlur
	return status
}

// Settings returns the per-renderer settings handed out at attach time.
func (c *Controller) Settings() Settings {
	return Settings{
		RendererTickMs:  c.cfg.Ticks.RendererMs,
		BlurProbability: c.cfg.Blur.Probability,
		IntensityMin:    c.cfg.Blur.IntensityMin,
		IntensityMax:    c.cfg.Blur.IntensityMax,
	}
}

// Close stops timers and folds any live session into the ledger.
func (c *Controller) Close() {
	c.heartbeat.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overrideTimer != nil {
		c.overrideTimer.Stop()
	}
	c.sessions.EndActive()
}

// onTick is the heartbeat callback. The session may have ended between
// the tick firing and the lock being acquired, so it re-validates.
func (c *Controller) onTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sessions.Active()
	if sess == nil {
		c.heartbeat.Stop()
		return
	}

	c.deliverVerdict(sess.TabID, c.engine.VerdictFor(sess.SiteKey))
}

// onOverrideExpired fires when the grace period elapses. A replacement
// activation may have superseded this timer; re-validate before sweeping.
func (c *Controller) onOverrideExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.override.IsActive() {
		return
	}
	c.override.Clear()

	c.logger.Info().Msg("Override expired, re-evaluating tracked tabs")
	c.sweep()
}

// sweep re-evaluates every known tab on a tracked site and delivers the
// current verdict, restoring correct enforcement after an override.
func (c *Controller) sweep() {
	for tabID, url := range c.tabs {
		key, ok := c.resolver.Resolve(url)
		if !ok || !sitekey.IsTracked(key, c.cfg.TrackedSites) {
			continue
		}
		c.deliverVerdict(tabID, c.engine.VerdictFor(key))
	}
}

// evaluateActive delivers a fresh verdict for the active session's tab,
// giving immediate feedback on focus changes instead of waiting a tick.
func (c *Controller) evaluateActive() {
	sess := c.sessions.Active()
	if sess == nil {
		return
	}
	c.deliverVerdict(sess.TabID, c.engine.VerdictFor(sess.SiteKey))
}

func (c *Controller) deliverVerdict(tabID int, v engine.Verdict) {
	cmd := delivery.Command{Kind: delivery.KindRemove}
	if v.ShouldBlur {
		cmd = delivery.Command{
			Kind:          delivery.KindApply,
			IntensityHint: c.intensityHint(),
		}
	}
	c.queue.Deliver(tabID, cmd)
}

// intensityHint picks a pseudo-random hint in the configured range. The
// hint is opaque to this controller; the renderer owns the effect.
func (c *Controller) intensityHint() int {
	min, max := c.cfg.Blur.IntensityMin, c.cfg.Blur.IntensityMax
	if max <= min {
		return min
	}
	return min + rand.IntN(max-min+1)
}

// syncHeartbeat aligns the heartbeat with session lifecycle: ticking
// exactly while a session is live.
func (c *Controller) syncHeartbeat() {
	if c.sessions.Active() != nil {
		if !c.heartbeat.Running() {
			c.heartbeat.Start()
		}
		return
	}
	c.heartbeat.Stop()
}
