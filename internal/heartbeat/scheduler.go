// Package heartbeat drives periodic re-evaluation while a tracked
// session is live.
package heartbeat

import (
	"sync"
	"time"

	"github.com/dimtab/dimtab/internal/metrics"
	"github.com/rs/zerolog"
)

// Scheduler runs a callback on a fixed interval. It starts when a
// session starts and stops when the session ends, so no background work
// happens outside periods of actual exposure.
//
// A tick already in flight when Stop is called may still fire once; the
// callback must re-validate state rather than assume a session exists.
type Scheduler struct {
	interval time.Duration
	fn       func()
	logger   zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

// NewScheduler creates a stopped scheduler invoking fn every interval.
func NewScheduler(interval time.Duration, fn func(), logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		fn:       fn,
		logger:   logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Start begins ticking. If a heartbeat is already running it is
// cancelled first, so duplicate concurrent tickers cannot exist.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stop)
	}

	s.stop = make(chan struct{})
	s.running = true

	go s.run(s.stop)

	s.logger.Debug().Dur("interval", s.interval).Msg("Heartbeat started")
}

// Stop cancels the heartbeat. Idempotent; safe when already stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stop)
	s.running = false

	s.logger.Debug().Msg("Heartbeat stopped")
}

// Running reports whether the heartbeat is currently ticking.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.HeartbeatTicks.Inc()
			s.fn()
		}
	}
}
