package bridge

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dimtab/dimtab/internal/metrics"
	"github.com/gorilla/mux"
)

// Event types accepted on the ingest endpoint.
const (
	EventTabActivated = "tab-activated"
	EventTabUpdated   = "tab-updated"
	EventTabRemoved   = "tab-removed"
	EventWindowFocus  = "window-focus"
)

// Event is one browser focus/navigation event from the extension.
type Event struct {
	Type    string `json:"type"`
	TabID   int    `json:"tabId"`
	URL     string `json:"url,omitempty"`
	Focused bool   `json:"focused,omitempty"`
}

// handleEvent dispatches an extension event to the controller.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	switch ev.Type {
	case EventTabActivated:
		s.controller.OnTabActivated(ev.TabID, ev.URL)
	case EventTabUpdated:
		s.controller.OnTabUpdated(ev.TabID, ev.URL)
	case EventTabRemoved:
		s.controller.OnTabRemoved(ev.TabID)
	case EventWindowFocus:
		s.controller.OnWindowFocusChanged(ev.Focused, ev.TabID, ev.URL)
	default:
		writeError(w, http.StatusBadRequest, "Unknown event type: "+ev.Type)
		return
	}

	metrics.BrowserEvents.WithLabelValues(ev.Type).Inc()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"ok": true})
}

// overrideResponse is the body for override requests.
type overrideResponse struct {
	Accepted bool `json:"accepted"`
}

// handleOverride activates the grace period.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	accepted := s.controller.RequestOverride()
	writeJSON(w, http.StatusOK, overrideResponse{Accepted: accepted})
}

// stateReport is a renderer's advisory self-report.
type stateReport struct {
	Blurred bool `json:"blurred"`
}

// handleStateReport receives a renderer's advisory state report.
func (s *Server) handleStateReport(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDVar(w, r)
	if !ok {
		return
	}

	var report stateReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid state report")
		return
	}

	s.controller.OnRendererStateReport(tabID, report.Blurred)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"ok": true})
}

// statusResponse mirrors controller.Status on the wire.
type statusResponse struct {
	Tracked                 bool   `json:"tracked"`
	SiteKey                 string `json:"siteKey,omitempty"`
	ElapsedMillis           int64  `json:"elapsedMillis"`
	TimeoutMillis           int64  `json:"timeoutMillis"`
	ShouldBlur              bool   `json:"shouldBlur"`
	OverrideActive          bool   `json:"overrideActive"`
	OverrideRemainingMillis int64  `json:"overrideRemainingMillis"`
}

// handleStatus reports tracking state for a tab.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDVar(w, r)
	if !ok {
		return
	}

	status := s.controller.GetStatus(tabID)
	writeJSON(w, http.StatusOK, statusResponse{
		Tracked:                 status.Tracked,
		SiteKey:                 status.SiteKey,
		ElapsedMillis:           status.Elapsed.Milliseconds(),
		TimeoutMillis:           status.Timeout.Milliseconds(),
		ShouldBlur:              status.ShouldBlur,
		OverrideActive:          status.OverrideActive,
		OverrideRemainingMillis: status.OverrideRemaining.Milliseconds(),
	})
}

// tabIDVar extracts the tab ID path variable.
func tabIDVar(w http.ResponseWriter, r *http.Request) (int, bool) {
	tabID, err := strconv.Atoi(mux.Vars(r)["tabID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tab ID")
		return 0, false
	}
	return tabID, true
}
