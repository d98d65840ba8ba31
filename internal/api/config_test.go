package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiotour/pkg/config"
	"audiotour/pkg/store"
)

func TestConfigHandler(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewConfigHandler(st, config.NewProvider(config.DefaultConfig(), st))
	mux := NewMux(Handlers{Config: h}, nil)

	get := func() ConfigResponse {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/config", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ConfigResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}
	put := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/config", strings.NewReader(body)))
		return rec
	}

	resp := get()
	assert.Equal(t, 18.0, resp.ArriveRadius)
	assert.Equal(t, "1m0s", resp.DwellThreshold)
	assert.Equal(t, "manual", resp.LocationProvider)

	rec := put(`{"arrive_radius_m":25,"dwell_threshold":"45s","location_provider":"walker","walker_speed_mps":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = get()
	assert.Equal(t, 25.0, resp.ArriveRadius)
	assert.Equal(t, "45s", resp.DwellThreshold)
	assert.Equal(t, "walker", resp.LocationProvider)
	assert.Equal(t, 2.0, resp.WalkerSpeed)

	val, ok := st.GetState(context.Background(), config.KeyArriveRadius)
	require.True(t, ok)
	assert.Equal(t, "25m", val)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"arrive beyond approach", `{"arrive_radius_m":70}`},
		{"bad duration", `{"arrived_delay":"soon"}`},
		{"unknown provider", `{"location_provider":"gps"}`},
		{"zero speed", `{"walker_speed_mps":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, put(tt.body).Code)
		})
	}

	// Rejected updates leave the stored values alone.
	assert.Equal(t, 25.0, get().ArriveRadius)
}
