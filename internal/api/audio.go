package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"audiotour/pkg/playback"
)

// VolumeControl is the master volume of the deck.
type VolumeControl interface {
	SetVolume(ctx context.Context, vol float64)
	Volume() float64
}

// AudioHandler handles audio endpoints.
type AudioHandler struct {
	vol      VolumeControl
	snap     func() playback.Snapshot
	onVolume func(float64)
}

// NewAudioHandler creates a new AudioHandler. onVolume, if set, is told about volume changes.
func NewAudioHandler(vol VolumeControl, snap func() playback.Snapshot, onVolume func(float64)) *AudioHandler {
	return &AudioHandler{
		vol:      vol,
		snap:     snap,
		onVolume: onVolume,
	}
}

// AudioVolumeRequest represents a volume change request.
type AudioVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// AudioStatusResponse represents the audio status.
type AudioStatusResponse struct {
	Segment   playback.Segment `json:"active_segment"`
	IsPlaying bool             `json:"is_playing"`
	Elapsed   float64          `json:"elapsed_s"`
	Total     float64          `json:"total_s"`
	Volume    float64          `json:"volume"`
}

// HandleVolume handles POST /api/audio/volume
func (h *AudioHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req AudioVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// The deck clamps and persists.
	h.vol.SetVolume(r.Context(), req.Volume)
	vol := h.vol.Volume()
	if h.onVolume != nil {
		h.onVolume(vol)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"volume": vol,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleStatus handles GET /api/audio/status
func (h *AudioHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := AudioStatusResponse{Volume: h.vol.Volume()}
	if h.snap != nil {
		s := h.snap()
		resp.Segment = s.Segment
		resp.IsPlaying = s.Playing
		resp.Elapsed = s.Elapsed
		resp.Total = s.Total
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode audio status", "error", err)
	}
}
