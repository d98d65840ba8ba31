package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiotour/pkg/config"
	"audiotour/pkg/location"
	"audiotour/pkg/playback"
	"audiotour/pkg/session"
	"audiotour/pkg/store"
	"audiotour/pkg/tour"
)

type silentPlayer struct{}

func (silentPlayer) Load(string) error        { return nil }
func (silentPlayer) Play() error              { return nil }
func (silentPlayer) Pause()                   {}
func (silentPlayer) Seek(time.Duration) error { return nil }
func (silentPlayer) Elapsed() time.Duration   { return 0 }
func (silentPlayer) Total() time.Duration     { return 0 }

type fakeVolume struct {
	mu  sync.Mutex
	vol float64
}

func (f *fakeVolume) SetVolume(_ context.Context, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vol = min(max(v, 0), 1)
}

func (f *fakeVolume) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vol
}

type fixture struct {
	sess   *session.Session
	mux    *http.ServeMux
	volume *fakeVolume
	calls  []float64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	content, err := tour.LoadFile("../../pkg/tour/testdata/tour.json")
	require.NoError(t, err)

	deck := playback.Deck{}
	for _, seg := range playback.Segments {
		deck[seg] = silentPlayer{}
	}

	sess, err := session.Open(context.Background(), session.Options{
		Config:  config.DefaultConfig(),
		Content: content,
		Store:   store.NewMemoryStore(),
		Source:  location.NewManual(),
		Players: deck,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	f := &fixture{sess: sess, volume: &fakeVolume{vol: 1}}
	manual, _ := sess.Manual()
	f.mux = NewMux(Handlers{
		Tour:     NewTourHandler(sess.Sequence()),
		Playback: NewPlaybackHandler(sess.Machine()),
		Location: NewLocationHandler(manual),
		Audio:    NewAudioHandler(f.volume, sess.Machine().Snapshot, func(v float64) { f.calls = append(f.calls, v) }),
		Trip:     NewTripHandler(sess),
		Stats:    NewStatsHandler(sess.Machine(), sess.StartedAt()),
	}, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitFor(t *testing.T, cond func(playback.Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(f.sess.Machine().Snapshot()) }, 2*time.Second, 5*time.Millisecond)
}

func TestHealthAndVersion(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = f.do(t, "GET", "/api/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var v map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.NotEmpty(t, v["version"])
}

func TestTourEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/tour", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TourResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "mission-murals", resp.ID)
	require.Len(t, resp.Entries, 5)
	assert.Equal(t, tour.KindGreeting, resp.Entries[0].Kind)
	assert.Equal(t, tour.KindEnding, resp.Entries[4].Kind)

	rec = f.do(t, "GET", "/api/tour/geojson", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 2)
}

func TestPlaybackControl(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"unknown action", `{"action":"rewind"}`, http.StatusBadRequest},
		{"skip without index", `{"action":"skip"}`, http.StatusBadRequest},
		{"skip", `{"action":"skip","index":2}`, http.StatusAccepted},
		{"seek without position", `{"action":"seek"}`, http.StatusBadRequest},
		{"seek negative", `{"action":"seek","position_s":-4}`, http.StatusBadRequest},
		{"seek", `{"action":"seek","position_s":42.5}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "POST", "/api/playback/control", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	f.waitFor(t, func(s playback.Snapshot) bool { return s.Index == 2 })

	rec := f.do(t, "POST", "/api/playback/control", `{"action":"prev"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.waitFor(t, func(s playback.Snapshot) bool { return s.Index == 1 })

	rec = f.do(t, "GET", "/api/playback", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap playback.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, 5, snap.Length)

	// Out-of-range indices are accepted and ignored by the machine.
	rec = f.do(t, "POST", "/api/playback/control", `{"action":"select","index":99}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestLocationEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/location", `{"lat":37.7522,"lon":-122.4122,"accuracy":5}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.waitFor(t, func(s playback.Snapshot) bool { return s.Location != nil })

	rec = f.do(t, "POST", "/api/location", `{"error":"permission_denied"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.waitFor(t, func(s playback.Snapshot) bool { return s.Location == nil })

	for _, body := range []string{`{"lat":37.75}`, `{"lat":95,"lon":0}`, `nope`} {
		rec = f.do(t, "POST", "/api/location", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	assert.Nil(t, NewLocationHandler(nil))
}

func TestAudioEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/audio/volume", `{"volume":1.7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, f.volume.Volume())

	rec = f.do(t, "POST", "/api/audio/volume", `{"volume":0.4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []float64{1, 0.4}, f.calls)

	rec = f.do(t, "GET", "/api/audio/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status AudioStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 0.4, status.Volume)
	assert.Equal(t, playback.SegmentGreeting, status.Segment)
}

func TestTripEvents(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/trip/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, "GET", "/api/trip/events?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Nil(t, NewTripHandler(nil))
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, "Server", resp.Diagnostics[0].Name)
	assert.Positive(t, resp.Diagnostics[0].Goroutines)
}

func TestPlaybackStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/playback/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var snap playback.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "mission-murals", snap.TourID)

	f.sess.Machine().SkipTo(3)
	for snap.Index != 3 {
		require.NoError(t, conn.ReadJSON(&snap))
	}
	assert.Equal(t, 3, snap.Index)
}

func TestRoutesDisabled(t *testing.T) {
	mux := NewMux(Handlers{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tour", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSPAFallback(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>shell</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("console.log(1)"), 0o644))
	mux := NewMux(Handlers{WebRoot: root}, nil)

	for path, want := range map[string]string{
		"/app.js":  "console.log(1)",
		"/stops/3": "<html>shell</html>",
		"/":        "<html>shell</html>",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}
}
