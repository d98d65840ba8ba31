package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"audiotour/pkg/geo"
	"audiotour/pkg/progress"
	"audiotour/pkg/store"
	"audiotour/pkg/tour"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.advance(d, false)
}

// AdvanceIgnoringStop also fires stopped timers, as when Stop loses the race with a firing.
func (c *fakeClock) AdvanceIgnoringStop(d time.Duration) {
	c.advance(d, true)
}

func (c *fakeClock) advance(d time.Duration, ignoreStop bool) {
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if t.fired || (t.stopped && !ignoreStop) || t.at.After(c.now) {
			continue
		}
		t.fired = true
		t.f()
	}
}

type fakePlayer struct {
	src     string
	playing bool
	pos     time.Duration
	total   time.Duration
	plays   int
	loads   int
}

func (p *fakePlayer) Load(src string) error {
	p.src = src
	p.pos = 0
	p.loads++
	return nil
}

func (p *fakePlayer) Play() error {
	p.playing = true
	p.plays++
	return nil
}

func (p *fakePlayer) Pause()                       { p.playing = false }
func (p *fakePlayer) Seek(pos time.Duration) error { p.pos = pos; return nil }
func (p *fakePlayer) Elapsed() time.Duration       { return p.pos }
func (p *fakePlayer) Total() time.Duration         { return p.total }

type fakeObserver struct {
	activations []Segment
	playing     []bool
	evaluated   []geo.Zone
	lost        int
	visited     []int
	restarts    int
	stale       []string
}

func (o *fakeObserver) SegmentActivated(_ string, _ int, seg Segment, _ bool) {
	o.activations = append(o.activations, seg)
}
func (o *fakeObserver) PlayingChanged(_ string, _ Segment, playing bool) {
	o.playing = append(o.playing, playing)
}
func (o *fakeObserver) LocationEvaluated(_ string, _ int, _ float64, zone geo.Zone) {
	o.evaluated = append(o.evaluated, zone)
}
func (o *fakeObserver) LocationLost(string, error)  { o.lost++ }
func (o *fakeObserver) StopVisited(_ string, i int) { o.visited = append(o.visited, i) }
func (o *fakeObserver) Restarted(string)            { o.restarts++ }
func (o *fakeObserver) StaleTimer(_ string, kind string) {
	o.stale = append(o.stale, kind)
}

// Stop coordinates of the test tour.
var (
	stop1 = geo.Point{Lat: 37.7522, Lon: -122.4122}
	stop2 = geo.Point{Lat: 37.7614, Lon: -122.4226}
)

// testSequence builds [greeting, stop1, stop2, stop3 (no coords), ending].
func testSequence(t *testing.T) *tour.Sequence {
	t.Helper()
	f := func(v float64) *float64 { return &v }
	seq, err := tour.Build(&tour.Content{
		TourID: "mission",
		Stops: []tour.StopContent{
			{Name: "Balmy Alley", Lat: f(stop1.Lat), Lng: f(stop1.Lon), NarrationAudio: "audio/1.mp3"},
			{Name: "Women's Building", Lat: f(stop2.Lat), Lng: f(stop2.Lon), NarrationAudio: "audio/2.mp3"},
			{Name: "Precita Eyes", NarrationAudio: "audio/3.mp3"},
		},
		Greeting: &tour.Bookend{Audio: "audio/greeting.mp3"},
		Ending:   &tour.Bookend{Audio: "audio/ending.mp3"},
	})
	require.NoError(t, err)
	return seq
}

type harness struct {
	m       *Machine
	clock   *fakeClock
	players map[Segment]*fakePlayer
	obs     *fakeObserver
	st      *store.MemoryStore
}

func newHarness(t *testing.T, mode Mode, st *store.MemoryStore) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	h := &harness{
		clock:   newFakeClock(),
		players: make(map[Segment]*fakePlayer),
		obs:     &fakeObserver{},
		st:      st,
	}
	deck := Deck{}
	for _, seg := range Segments {
		p := &fakePlayer{total: 3 * time.Minute}
		h.players[seg] = p
		deck[seg] = p
	}

	m, err := New(testSequence(t), deck, Options{
		Mode:     mode,
		Clock:    h.clock,
		Progress: progress.NewAdapter(st),
		Observer: h.obs,
	})
	require.NoError(t, err)
	h.m = m
	h.m.drain()
	return h
}

// do runs an intent and processes everything it queued.
func (h *harness) do(f func()) Snapshot {
	f()
	h.m.drain()
	return h.m.Snapshot()
}

// step processes exactly one queued event.
func (h *harness) step() Snapshot {
	ev, ok := h.m.q.Pop()
	if ok {
		h.m.handle(ev)
	}
	return h.m.Snapshot()
}

func (h *harness) advance(d time.Duration) Snapshot {
	h.clock.Advance(d)
	h.m.drain()
	return h.m.Snapshot()
}

func (h *harness) playingSegments() []Segment {
	var out []Segment
	for _, seg := range Segments {
		if h.players[seg].playing {
			out = append(out, seg)
		}
	}
	return out
}

func (h *harness) savedProgress() (string, bool) {
	return h.st.GetState(context.Background(), progress.Key("mission"))
}

// away returns a point dist meters south of p.
func away(p geo.Point, dist float64) geo.Point {
	return geo.DestinationPoint(p, dist, 180)
}
