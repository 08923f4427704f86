package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dimtab/dimtab/internal/delivery"
)

// connBuffer is the per-renderer command buffer. Commands are sparse
// (one per verdict flip), so a small buffer suffices; a full buffer
// means the renderer stopped reading and is treated as a send failure.
const connBuffer = 16

// keepAliveInterval paces SSE comment frames so intermediaries do not
// time out an idle command stream.
const keepAliveInterval = 30 * time.Second

// streamConn is an attached renderer's command channel, backed by one
// server-sent-events response.
type streamConn struct {
	ch     chan delivery.Command
	closed chan struct{}
}

func newStreamConn() *streamConn {
	return &streamConn{
		ch:     make(chan delivery.Command, connBuffer),
		closed: make(chan struct{}),
	}
}

// Send queues a command for the stream without blocking the controller.
func (c *streamConn) Send(cmd delivery.Command) error {
	select {
	case <-c.closed:
		return delivery.ErrNotAttached
	default:
	}

	select {
	case c.ch <- cmd:
		return nil
	default:
		return errors.New("bridge: command buffer full")
	}
}

// handleCommands is the renderer attachment handshake: opening this SSE
// stream registers the renderer (draining any queued commands), closing
// it detaches. The first frame carries the renderer settings.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabIDVar(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "settings", s.controller.Settings()); err != nil {
		return
	}
	flusher.Flush()

	conn := newStreamConn()
	s.controller.AttachRenderer(tabID, conn)
	defer func() {
		close(conn.closed)
		s.controller.DetachRenderer(tabID, conn)
	}()

	s.logger.Debug().Int("tab_id", tabID).Msg("Renderer stream opened")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Tab closed or navigated away; silent no-op.
			s.logger.Debug().Int("tab_id", tabID).Msg("Renderer stream closed")
			return

		case cmd := <-conn.ch:
			if err := writeSSE(w, "command", cmd); err != nil {
				s.logger.Debug().Err(err).Int("tab_id", tabID).Msg("Renderer stream write failed")
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one server-sent event with a JSON payload.
func writeSSE(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
