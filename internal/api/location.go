package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"audiotour/pkg/geo"
	"audiotour/pkg/location"
)

// LocationHandler accepts readings from the shell's geolocation watch.
type LocationHandler struct {
	src *location.Manual
}

// NewLocationHandler creates a new LocationHandler. Returns nil when the session does not take
// readings from the shell.
func NewLocationHandler(src *location.Manual) *LocationHandler {
	if src == nil {
		return nil
	}
	return &LocationHandler{src: src}
}

// LocationRequest is one reading or a failure report.
type LocationRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Accuracy float64  `json:"accuracy"`
	Heading  *float64 `json:"heading,omitempty"`
	Error    string   `json:"error,omitempty"` // "permission_denied", "timeout" or free text
}

// HandleLocation handles POST /api/location
func (h *LocationHandler) HandleLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Error != "" {
		h.src.PushError(location.ParseError(req.Error))
		writeAccepted(w)
		return
	}

	if req.Lat == nil || req.Lon == nil {
		http.Error(w, "lat and lon required", http.StatusBadRequest)
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		http.Error(w, "coordinates out of range", http.StatusBadRequest)
		return
	}

	fix := location.Fix{
		Point:    geo.Point{Lat: *req.Lat, Lon: *req.Lon},
		Accuracy: req.Accuracy,
		Time:     time.Now(),
	}
	if req.Heading != nil {
		fix.Heading = *req.Heading
		fix.HasHeading = true
	}
	h.src.Push(fix)
	writeAccepted(w)
}

func writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "queued"}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
