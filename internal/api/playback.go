package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"audiotour/pkg/playback"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Controller is the part of the machine the shell drives.
type Controller interface {
	TogglePlayPause()
	SkipTo(index int)
	SelectStop(index int)
	Next()
	Prev()
	Restart()
	Seek(pos time.Duration)
	Snapshot() playback.Snapshot
	Subscribe() (<-chan playback.Snapshot, func())
}

// PlaybackHandler serves the playback state and accepts user intents.
type PlaybackHandler struct {
	ctl      Controller
	upgrader websocket.Upgrader
}

// NewPlaybackHandler creates a new PlaybackHandler.
func NewPlaybackHandler(ctl Controller) *PlaybackHandler {
	return &PlaybackHandler{
		ctl: ctl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ControlRequest represents a user intent.
type ControlRequest struct {
	Action   string   `json:"action"` // "toggle", "skip", "select", "next", "prev", "restart", "seek"
	Index    *int     `json:"index,omitempty"`
	Position *float64 `json:"position_s,omitempty"` // seek target in seconds
}

// HandleSnapshot handles GET /api/playback
func (h *PlaybackHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.ctl.Snapshot()); err != nil {
		slog.Error("Failed to encode playback snapshot", "error", err)
	}
}

// HandleControl handles POST /api/playback/control. Intents are queued; the response only
// acknowledges them.
func (h *PlaybackHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "toggle":
		h.ctl.TogglePlayPause()
	case "skip", "select":
		if req.Index == nil {
			http.Error(w, "index required", http.StatusBadRequest)
			return
		}
		if req.Action == "skip" {
			h.ctl.SkipTo(*req.Index)
		} else {
			h.ctl.SelectStop(*req.Index)
		}
	case "next":
		h.ctl.Next()
	case "prev":
		h.ctl.Prev()
	case "restart":
		h.ctl.Restart()
	case "seek":
		if req.Position == nil || *req.Position < 0 {
			http.Error(w, "non-negative position_s required", http.StatusBadRequest)
			return
		}
		h.ctl.Seek(time.Duration(*req.Position * float64(time.Second)))
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	slog.Debug("Playback control", "action", req.Action)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "queued",
		"action": req.Action,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleStream handles GET /api/playback/ws. Each transition is pushed as a JSON snapshot;
// a slow client only receives the most recent one.
func (h *PlaybackHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Playback: WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snaps, cancel := h.ctl.Subscribe()
	defer cancel()

	// Reader: handles pongs and detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				slog.Debug("Playback: WebSocket write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
