// Package bridge exposes the HTTP surface the browser extension talks
// to: focus/navigation event ingest, per-tab renderer attachment, state
// reports, status queries, and override requests.
package bridge

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"

	"github.com/dimtab/dimtab/internal/controller"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the bridge server configuration.
type Config struct {
	ListenAddr string
}

// Server is the extension bridge HTTP server.
type Server struct {
	config     Config
	controller *controller.Controller
	server     *http.Server
	router     *mux.Router
	listener   net.Listener // Optional pre-created listener (for systemd socket activation)
	logger     zerolog.Logger
}

// NewServer creates a bridge server around a controller.
func NewServer(cfg Config, ctrl *controller.Controller, logger zerolog.Logger) *Server {
	s := &Server{
		config:     cfg,
		controller: ctrl,
		router:     mux.NewRouter(),
		logger:     logger.With().Str("component", "bridge").Logger(),
	}

	s.routes()

	s.server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.router,
	}

	return s
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/events", s.handleEvent).Methods(http.MethodPost)
	v1.HandleFunc("/override", s.handleOverride).Methods(http.MethodPost)
	v1.HandleFunc("/tabs/{tabID:[0-9]+}/commands", s.handleCommands).Methods(http.MethodGet)
	v1.HandleFunc("/tabs/{tabID:[0-9]+}/state", s.handleStateReport).Methods(http.MethodPost)
	v1.HandleFunc("/tabs/{tabID:[0-9]+}/status", s.handleStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the bridge server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting bridge server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated bridge listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Bridge server error")
		}
	}()
	return nil
}

// Stop stops the bridge server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping bridge server")
	return s.server.Close()
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// writeJSON writes a JSON response, buffering first so an encode failure
// does not produce a half-written body.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
