package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"audiotour/pkg/config"
	"audiotour/pkg/store"
)

// ConfigHandler handles configuration API requests. Changes apply when the next session opens.
type ConfigHandler struct {
	store   store.StateStore
	cfgProv config.Provider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(st store.StateStore, cfg config.Provider) *ConfigHandler {
	return &ConfigHandler{
		store:   st,
		cfgProv: cfg,
	}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	ArriveRadius     float64 `json:"arrive_radius_m"`
	ApproachRadius   float64 `json:"approach_radius_m"`
	DwellThreshold   string  `json:"dwell_threshold"`
	ArrivedDelay     string  `json:"arrived_delay"`
	BannerTTL        string  `json:"banner_ttl"`
	LocationProvider string  `json:"location_provider"`
	WalkerSpeed      float64 `json:"walker_speed_mps"`
	Preview          bool    `json:"preview"`
}

// ConfigRequest represents the config API request for updates.
type ConfigRequest struct {
	ArriveRadius     *float64 `json:"arrive_radius_m,omitempty"`
	ApproachRadius   *float64 `json:"approach_radius_m,omitempty"`
	DwellThreshold   string   `json:"dwell_threshold,omitempty"`
	ArrivedDelay     string   `json:"arrived_delay,omitempty"`
	BannerTTL        string   `json:"banner_ttl,omitempty"`
	LocationProvider string   `json:"location_provider,omitempty"`
	WalkerSpeed      *float64 `json:"walker_speed_mps,omitempty"`
}

// HandleGetConfig handles GET /api/config
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	resp := h.getConfigResponse(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode config response", "error", err)
	}
}

func (h *ConfigHandler) getConfigResponse(ctx context.Context) ConfigResponse {
	eff := h.cfgProv.Effective(ctx)
	return ConfigResponse{
		ArriveRadius:     eff.Playback.ArriveRadius.Meters(),
		ApproachRadius:   eff.Playback.ApproachRadius.Meters(),
		DwellThreshold:   eff.Playback.DwellThreshold.Std().String(),
		ArrivedDelay:     eff.Playback.ArrivedDelay.Std().String(),
		BannerTTL:        eff.Playback.BannerTTL.Std().String(),
		LocationProvider: eff.Location.Provider,
		WalkerSpeed:      eff.Location.Walker.SpeedMps,
		Preview:          eff.Tour.Preview,
	}
}

// HandleSetConfig handles PUT /api/config. The update is rejected as a whole if the resulting
// configuration is invalid.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updates, err := h.collectUpdates(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for key, val := range updates {
		if err := h.store.SetState(r.Context(), key, val); err != nil {
			slog.Error("Failed to save config value", "key", key, "error", err)
			http.Error(w, "failed to save config", http.StatusInternalServerError)
			return
		}
	}
	if len(updates) > 0 {
		slog.Info("Config updated, applies on next start", "keys", len(updates))
	}

	h.HandleGetConfig(w, r)
}

// collectUpdates validates the request against the effective config and returns the state
// values to write.
func (h *ConfigHandler) collectUpdates(ctx context.Context, req *ConfigRequest) (map[string]string, error) {
	candidate := *h.cfgProv.Effective(ctx)
	updates := make(map[string]string)

	if req.ArriveRadius != nil {
		candidate.Playback.ArriveRadius = config.Distance(*req.ArriveRadius)
		updates[config.KeyArriveRadius] = fmt.Sprintf("%gm", *req.ArriveRadius)
	}
	if req.ApproachRadius != nil {
		candidate.Playback.ApproachRadius = config.Distance(*req.ApproachRadius)
		updates[config.KeyApproachRadius] = fmt.Sprintf("%gm", *req.ApproachRadius)
	}

	durations := []struct {
		key string
		val string
		dst *config.Duration
	}{
		{config.KeyDwellThreshold, req.DwellThreshold, &candidate.Playback.DwellThreshold},
		{config.KeyArrivedDelay, req.ArrivedDelay, &candidate.Playback.ArrivedDelay},
		{config.KeyBannerTTL, req.BannerTTL, &candidate.Playback.BannerTTL},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		dur, err := config.ParseDuration(d.val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = config.Duration(dur)
		updates[d.key] = d.val
	}

	if req.LocationProvider != "" {
		candidate.Location.Provider = req.LocationProvider
		updates[config.KeyLocationProvider] = req.LocationProvider
	}
	if req.WalkerSpeed != nil {
		if *req.WalkerSpeed <= 0 {
			return nil, errors.New("walker speed must be positive")
		}
		updates[config.KeyWalkerSpeed] = fmt.Sprintf("%g", *req.WalkerSpeed)
	}

	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	return updates, nil
}
