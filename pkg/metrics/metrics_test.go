package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiotour/pkg/geo"
	"audiotour/pkg/location"
	"audiotour/pkg/playback"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorObserves(t *testing.T) {
	c := NewCollector()
	var ob playback.Observer = c

	ob.SegmentActivated("mission", 1, playback.SegmentApproaching, true)
	ob.SegmentActivated("mission", 1, playback.SegmentArrived, true)
	ob.PlayingChanged("mission", playback.SegmentArrived, true)
	ob.LocationEvaluated("mission", 1, 42.5, geo.ZoneApproach)
	ob.LocationLost("mission", location.ErrPermissionDenied)
	ob.LocationLost("mission", errors.New("gps off"))
	ob.StopVisited("mission", 1)
	ob.Restarted("mission")
	ob.StaleTimer("mission", "arrived_delay")
	c.SetNATSConnected(true)
	c.SetVolume(0.5)

	body := scrape(t, c)
	for _, want := range []string{
		`audiotour_segments_activated_total{segment="approaching"} 1`,
		`audiotour_segments_activated_total{segment="arrived"} 1`,
		`audiotour_location_evaluations_total{zone="approach"} 1`,
		`audiotour_distance_to_stop_meters 42.5`,
		`audiotour_location_errors_total{reason="permission_denied"} 1`,
		`audiotour_location_errors_total{reason="other"} 1`,
		`audiotour_stops_visited_total 1`,
		`audiotour_restarts_total 1`,
		`audiotour_stale_timers_total{kind="arrived_delay"} 1`,
		`audiotour_active_stop_index 1`,
		`audiotour_playing 1`,
		`audiotour_nats_connected 1`,
		`audiotour_volume 0.5`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestCollectorPlayingFollowsPause(t *testing.T) {
	c := NewCollector()

	c.SegmentActivated("mission", 2, playback.SegmentNarration, true)
	c.PlayingChanged("mission", playback.SegmentNarration, true)
	assert.Contains(t, scrape(t, c), "audiotour_playing 1")

	// Pausing activates nothing but must still clear the gauge
	c.PlayingChanged("mission", playback.SegmentNarration, false)
	assert.Contains(t, scrape(t, c), "audiotour_playing 0")
}

func TestLostReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{location.ErrPermissionDenied, "permission_denied"},
		{location.ErrTimeout, "timeout"},
		{errors.New("x"), "other"},
		{nil, "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lostReason(tt.err))
	}
}
