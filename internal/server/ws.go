package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ayusman/spotter/internal/app"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/pose"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 5 * time.Second
	// maxMessageSize bounds one inbound frame message.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// streamError is sent in place of an update when a frame is rejected.
type streamError struct {
	Error string `json:"error"`
}

// StreamHandler accepts landmark frames over a websocket and answers each
// with the session update. The session itself is created over HTTP first.
type StreamHandler struct {
	app *app.App
}

// NewStreamHandler creates a StreamHandler for the given app.
func NewStreamHandler(a *app.App) *StreamHandler {
	return &StreamHandler{app: a}
}

// ServeHTTP handles websocket upgrade requests for /api/sessions/{id}/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.app.Snapshot(id); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Logf("websocket read error: %v", err)
			}
			return
		}

		var in app.FrameInput
		if err := json.Unmarshal(msg, &in); err != nil {
			reply := streamError{Error: "invalid JSON"}
			if errors.Is(err, pose.ErrMalformed) {
				reply.Error = err.Error()
			}
			if !h.write(conn, reply) {
				return
			}
			continue
		}

		u, err := h.app.Frame(r.Context(), id, in)
		switch {
		case err == nil:
			if !h.write(conn, u) {
				return
			}
		case errors.Is(err, exercise.ErrMalformedFrame):
			if !h.write(conn, streamError{Error: err.Error()}) {
				return
			}
		default:
			// Session stopped or gone.
			h.write(conn, streamError{Error: err.Error()})
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, v interface{}) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		monitoring.Logf("websocket write error: %v", err)
		return false
	}
	return true
}
