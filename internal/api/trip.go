package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"audiotour/pkg/store"
)

// EventLister provides the trip history of the open tour.
type EventLister interface {
	Events(ctx context.Context, limit int) ([]store.TourEvent, error)
}

// TripHandler handles trip-related API endpoints.
type TripHandler struct {
	events EventLister
}

// NewTripHandler creates a new TripHandler. Returns nil if dependencies are missing.
func NewTripHandler(events EventLister) *TripHandler {
	if events == nil {
		return nil
	}
	return &TripHandler{events: events}
}

// HandleEvents returns the trip events as JSON, oldest first.
// GET /api/trip/events?limit=N
func (h *TripHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.events.Events(r.Context(), limit)
	if err != nil {
		slog.Error("TripHandler: failed to list events", "error", err)
		http.Error(w, "failed to load trip events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []store.TourEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		slog.Error("Failed to encode trip events", "error", err)
	}
}
