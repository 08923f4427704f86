package delivery

import (
	"errors"

	"github.com/dimtab/dimtab/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultStateCacheSize bounds the last-commanded-state cache. Eviction
// only costs one redundant resend, so the bound can stay small.
const DefaultStateCacheSize = 512

// Queue delivers commands to attached renderers and buffers them for
// tabs whose renderer is not yet attached.
//
// The last-commanded cache records the blur state most recently commanded
// per tab, whether the command was sent or queued. Deliver consults it to
// suppress redundant commands, so a steady stream of identical verdicts
// from the heartbeat produces exactly one command. The cache is
// authoritative only for suppression; the true verdict always comes from
// the decision engine.
//
// Not internally synchronized; the controller serializes all access.
type Queue struct {
	conns         map[int]Conn
	pending       map[int][]Command
	lastCommanded *lru.Cache[int, bool]
	logger        zerolog.Logger
}

// NewQueue creates an empty delivery queue.
func NewQueue(stateCacheSize int, logger zerolog.Logger) (*Queue, error) {
	if stateCacheSize <= 0 {
		stateCacheSize = DefaultStateCacheSize
	}
	cache, err := lru.New[int, bool](stateCacheSize)
	if err != nil {
		return nil, err
	}
	return &Queue{
		conns:         make(map[int]Conn),
		pending:       make(map[int][]Command),
		lastCommanded: cache,
		logger:        logger.With().Str("component", "delivery").Logger(),
	}, nil
}

// Attach registers a renderer conn for a tab and drains any pending
// commands to it in original enqueue order. A conn already registered
// for the tab is replaced.
func (q *Queue) Attach(tabID int, conn Conn) {
	if _, replaced := q.conns[tabID]; !replaced {
		metrics.RenderersAttached.Inc()
	}
	q.conns[tabID] = conn

	queued := q.pending[tabID]
	delete(q.pending, tabID)

	for _, cmd := range queued {
		if err := conn.Send(cmd); err != nil {
			q.logger.Warn().
				Err(err).
				Int("tab_id", tabID).
				Str("kind", string(cmd.Kind)).
				Msg("Failed to replay queued command on attach")
			continue
		}
		metrics.CommandsDelivered.WithLabelValues(string(cmd.Kind)).Inc()
	}

	q.logger.Debug().
		Int("tab_id", tabID).
		Int("replayed", len(queued)).
		Msg("Renderer attached")
}

// Detach removes a tab's renderer conn. The conn must match the one
// currently registered: a disconnect callback resolving after the tab's
// renderer was replaced is stale and ignored.
func (q *Queue) Detach(tabID int, conn Conn) {
	current, ok := q.conns[tabID]
	if !ok || current != conn {
		return
	}
	delete(q.conns, tabID)
	metrics.RenderersAttached.Dec()
	q.logger.Debug().Int("tab_id", tabID).Msg("Renderer detached")
}

// Deliver sends a command to a tab's renderer, or queues it when no
// renderer is attached. Commands whose blur effect matches the tab's
// last commanded state are suppressed. Returns true when the command was
// sent or queued, false when suppressed.
func (q *Queue) Deliver(tabID int, cmd Command) bool {
	if last, known := q.lastCommanded.Get(tabID); known && last == cmd.Blurs() {
		return false
	}

	conn, attached := q.conns[tabID]
	if !attached {
		q.enqueue(tabID, cmd)
		return true
	}

	if err := conn.Send(cmd); err != nil {
		if errors.Is(err, ErrNotAttached) {
			// The conn knows its renderer is gone; queue until reconnect.
			delete(q.conns, tabID)
			metrics.RenderersAttached.Dec()
			q.enqueue(tabID, cmd)
			return true
		}
		// Any other failure is logged and the command dropped; the next
		// differing verdict will produce a fresh command.
		q.logger.Warn().
			Err(err).
			Int("tab_id", tabID).
			Str("kind", string(cmd.Kind)).
			Msg("Failed to deliver command")
		return false
	}

	q.lastCommanded.Add(tabID, cmd.Blurs())
	metrics.CommandsDelivered.WithLabelValues(string(cmd.Kind)).Inc()

	q.logger.Debug().
		Int("tab_id", tabID).
		Str("kind", string(cmd.Kind)).
		Msg("Command delivered")
	return true
}

func (q *Queue) enqueue(tabID int, cmd Command) {
	q.pending[tabID] = append(q.pending[tabID], cmd)
	q.lastCommanded.Add(tabID, cmd.Blurs())
	metrics.CommandsQueued.Inc()

	q.logger.Debug().
		Int("tab_id", tabID).
		Str("kind", string(cmd.Kind)).
		Int("queue_len", len(q.pending[tabID])).
		Msg("Renderer not attached, command queued")
}

// ClearState forgets a tab's last commanded state and pending commands.
// Called on navigation/reload: the new page starts unblurred and queued
// commands targeted the old document, so the next verdict must be
// delivered even if it matches the stale cached state.
func (q *Queue) ClearState(tabID int) {
	q.lastCommanded.Remove(tabID)
	delete(q.pending, tabID)
}

// Remove drops all delivery state for a closed tab.
func (q *Queue) Remove(tabID int) {
	if _, ok := q.conns[tabID]; ok {
		delete(q.conns, tabID)
		metrics.RenderersAttached.Dec()
	}
	q.ClearState(tabID)
}

// Attached reports whether a renderer is registered for the tab.
func (q *Queue) Attached(tabID int) bool {
	_, ok := q.conns[tabID]
	return ok
}

// LastCommanded returns the tab's last commanded blur state, if known.
func (q *Queue) LastCommanded(tabID int) (blurred bool, known bool) {
	return q.lastCommanded.Get(tabID)
}

// BlurredTabs returns every tab whose last commanded state is blurred.
func (q *Queue) BlurredTabs() []int {
	var tabs []int
	for _, tabID := range q.lastCommanded.Keys() {
		if blurred, _ := q.lastCommanded.Peek(tabID); blurred {
			tabs = append(tabs, tabID)
		}
	}
	return tabs
}
