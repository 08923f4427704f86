// Package metrics exposes prometheus metrics and the metrics HTTP server.
package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dimtab_sessions_started_total",
			Help: "Total timing sessions started",
		},
		[]string{"site"},
	)

	SessionSecondsAccumulated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dimtab_session_seconds_accumulated_total",
			Help: "Total focused seconds folded into site budgets",
		},
		[]string{"site"},
	)

	BudgetResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dimtab_budget_daily_resets_total",
			Help: "Total lazy daily budget resets performed",
		},
	)

	// Delivery metrics
	CommandsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dimtab_commands_delivered_total",
			Help: "Total blur commands delivered to renderers",
		},
		[]string{"kind"},
	)

	CommandsQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dimtab_commands_queued_total",
			Help: "Total commands queued for not-yet-attached renderers",
		},
	)

	RenderersAttached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dimtab_renderers_attached",
			Help: "Number of currently attached tab renderers",
		},
	)

	// Controller metrics
	HeartbeatTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dimtab_heartbeat_ticks_total",
			Help: "Total heartbeat re-evaluation ticks",
		},
	)

	OverridesRequested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dimtab_overrides_requested_total",
			Help: "Total override (grace period) activations",
		},
	)

	BrowserEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dimtab_browser_events_total",
			Help: "Total browser events received from the extension",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SessionsStarted,
		SessionSecondsAccumulated,
		BudgetResets,
		CommandsDelivered,
		CommandsQueued,
		RenderersAttached,
		HeartbeatTicks,
		OverridesRequested,
		BrowserEvents,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
