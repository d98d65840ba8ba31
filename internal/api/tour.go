package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"audiotour/pkg/tour"
)

// TourHandler serves the tour sequence.
type TourHandler struct {
	seq *tour.Sequence
}

// NewTourHandler creates a new TourHandler.
func NewTourHandler(seq *tour.Sequence) *TourHandler {
	return &TourHandler{seq: seq}
}

// TourResponse is the API representation of a tour.
type TourResponse struct {
	ID      string       `json:"tour_id"`
	Title   string       `json:"title"`
	Entries []tour.Entry `json:"entries"`
}

// HandleTour handles GET /api/tour
func (h *TourHandler) HandleTour(w http.ResponseWriter, r *http.Request) {
	resp := TourResponse{
		ID:      h.seq.ID(),
		Title:   h.seq.Title(),
		Entries: h.seq.Entries(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode tour response", "error", err)
	}
}

// HandleGeoJSON handles GET /api/tour/geojson
func (h *TourHandler) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := h.seq.GeoJSON().MarshalJSON()
	if err != nil {
		http.Error(w, "failed to encode stops", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write geojson response", "error", err)
	}
}
