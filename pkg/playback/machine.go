package playback

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"audiotour/pkg/geo"
	"audiotour/pkg/progress"
	"audiotour/pkg/tour"
)

// ProgressStore persists the active stop and visited set. Implementations swallow failures.
type ProgressStore interface {
	Load(ctx context.Context, tourID string) progress.Record
	Save(ctx context.Context, tourID string, rec progress.Record)
	Delete(ctx context.Context, tourID string)
}

// Options configures a Machine. Zero values select live mode, default settings and the wall clock.
type Options struct {
	Mode     Mode
	Settings *Settings
	Clock    Clock
	Progress ProgressStore // nil disables persistence
	Observer Observer
}

// Machine is the playback state machine. All state below the queue is owned by the event
// loop; other goroutines interact through Post-style methods and snapshots.
type Machine struct {
	seq      *tour.Sequence
	deck     Deck
	settings Settings
	clock    Clock
	mode     Mode
	progress ProgressStore
	observer Observer
	q        *queue
	ctx      context.Context

	index            int
	segment          Segment
	playing          bool
	visited          map[int]struct{}
	banner           *Banner
	pulse            uint64
	location         *geo.Point
	epoch            uint64
	narrationStarted bool
	running          Segment
	lastSaved        progress.Record

	tokenSeq    uint64
	delayToken  uint64
	delayTimer  Timer
	bannerToken uint64
	bannerTimer Timer

	staleTimers atomic.Uint64

	mu   sync.RWMutex
	snap Snapshot

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

// New creates a machine positioned at the restored stop (live mode) or the greeting.
// The first decision is queued and runs once the loop starts.
func New(seq *tour.Sequence, deck Deck, opts Options) (*Machine, error) {
	if seq == nil {
		return nil, errors.New("playback: nil sequence")
	}
	if deck == nil {
		deck = Deck{}
	}

	m := &Machine{
		seq:      seq,
		deck:     deck,
		settings: DefaultSettings(),
		clock:    opts.Clock,
		mode:     opts.Mode,
		progress: opts.Progress,
		observer: opts.Observer,
		q:        newQueue(),
		ctx:      context.Background(),
		segment:  SegmentNone,
		running:  SegmentNone,
		visited:  make(map[int]struct{}),
		subs:     make(map[int]chan Snapshot),
	}
	if opts.Settings != nil {
		m.settings = *opts.Settings
	}
	if m.clock == nil {
		m.clock = RealClock()
	}
	if m.mode == "" {
		m.mode = ModeLive
	}
	if m.mode == ModePreview {
		m.progress = nil
	}
	if m.observer == nil {
		m.observer = Observers(nil)
	}

	rec := m.restore()
	m.lastSaved = rec
	m.enterIndex(rec.ActiveStopIndex)
	m.saveProgress()
	m.publish()

	return m, nil
}

// restore loads the saved progress and clamps it to the sequence.
func (m *Machine) restore() progress.Record {
	if m.progress == nil {
		return progress.Default()
	}
	rec := m.progress.Load(m.ctx, m.seq.ID())
	if !m.seq.InRange(rec.ActiveStopIndex) {
		slog.Warn("Playback: Saved stop out of range, starting over", "tour", m.seq.ID(), "index", rec.ActiveStopIndex)
		rec.ActiveStopIndex = 0
	}
	visited := make([]int, 0, len(rec.Visited))
	for _, v := range rec.Visited {
		if m.seq.IsRealStop(v) {
			m.visited[v] = struct{}{}
			visited = append(visited, v)
		}
	}
	rec.Visited = visited
	if rec.ActiveStopIndex > 0 || len(visited) > 0 {
		slog.Info("Playback: Restored progress", "tour", m.seq.ID(), "index", rec.ActiveStopIndex, "visited", visited)
	}
	return rec
}

// Run processes events until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	m.ctx = ctx
	slog.Info("Playback: Event loop started", "tour", m.seq.ID(), "mode", m.mode)
	for {
		m.drain()
		select {
		case <-ctx.Done():
			m.cancelDelay()
			m.cancelBanner()
			slog.Info("Playback: Event loop stopped", "tour", m.seq.ID())
			return
		case <-m.q.signal:
		}
	}
}

// drain processes queued events to completion, one at a time.
func (m *Machine) drain() {
	for {
		ev, ok := m.q.Pop()
		if !ok {
			return
		}
		m.handle(ev)
	}
}

func (m *Machine) post(ev event) {
	m.q.Push(ev)
}

// TogglePlayPause flips playback of the active segment, selecting one first if none is active.
func (m *Machine) TogglePlayPause() { m.post(event{kind: evToggle}) }

// SkipTo moves to index. Out-of-range indices are ignored.
func (m *Machine) SkipTo(index int) { m.post(event{kind: evSkipTo, index: index}) }

// SelectStop moves to index from a direct list selection.
func (m *Machine) SelectStop(index int) { m.post(event{kind: evSkipTo, index: index}) }

// Next moves to the following entry.
func (m *Machine) Next() { m.post(event{kind: evStep, index: 1}) }

// Prev moves to the preceding entry.
func (m *Machine) Prev() { m.post(event{kind: evStep, index: -1}) }

// Restart clears the visited set, returns to the greeting and deletes saved progress.
func (m *Machine) Restart() { m.post(event{kind: evRestart}) }

// Seek moves the active segment to pos. Visited status still follows the progress reports.
func (m *Machine) Seek(pos time.Duration) { m.post(event{kind: evSeek, elapsed: pos}) }

// UpdateLocation reports a new position of the walker.
func (m *Machine) UpdateLocation(p geo.Point) { m.post(event{kind: evLocation, loc: p}) }

// LocationError reports that no position is available.
func (m *Machine) LocationError(err error) { m.post(event{kind: evLocationError, err: err}) }

// SegmentEnded reports that a segment's audio finished.
func (m *Machine) SegmentEnded(seg Segment) { m.post(event{kind: evSegmentEnded, segment: seg}) }

// SegmentProgress reports the elapsed playback time of a segment.
func (m *Machine) SegmentProgress(seg Segment, elapsed time.Duration) {
	m.post(event{kind: evSegmentProgress, segment: seg, elapsed: elapsed})
}

// Pending returns the number of queued events.
func (m *Machine) Pending() int { return m.q.Count() }

// StaleTimers returns how many delayed transitions were discarded.
func (m *Machine) StaleTimers() uint64 { return m.staleTimers.Load() }

// Sequence returns the tour sequence.
func (m *Machine) Sequence() *tour.Sequence { return m.seq }

// Mode returns the screen variant.
func (m *Machine) Mode() Mode { return m.mode }

// Snapshot returns the state published after the last transition.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Subscribe returns a channel receiving the latest snapshot after every transition.
// Slow readers only see the most recent one. Call cancel to release it.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	// publish stores the snapshot before taking subMu, so seeding under the lock never
	// hands out an older state than the next delivery.
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.Snapshot()
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Machine) publish() {
	snap := m.buildSnapshot()

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *Machine) buildSnapshot() Snapshot {
	visited := m.visitedList()
	s := Snapshot{
		TourID:  m.seq.ID(),
		Mode:    m.mode,
		Index:   m.index,
		Length:  m.seq.Len(),
		Segment: m.segment,
		Playing: m.playing,
		Visited: visited,
		Pulse:   m.pulse,
		Epoch:   m.epoch,
	}
	if m.banner != nil {
		b := *m.banner
		s.Banner = &b
	}
	if m.location != nil {
		loc := *m.location
		s.Location = &loc
	}
	if p := m.deck[m.segment]; p != nil {
		s.Elapsed = p.Elapsed().Seconds()
		s.Total = p.Total().Seconds()
	}
	return s
}

func (m *Machine) visitedList() []int {
	out := make([]int, 0, len(m.visited))
	for v := range m.visited {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (m *Machine) saveProgress() {
	if m.progress == nil {
		return
	}
	rec := progress.Record{ActiveStopIndex: m.index, Visited: m.visitedList()}
	if rec.ActiveStopIndex == m.lastSaved.ActiveStopIndex && equalInts(rec.Visited, m.lastSaved.Visited) {
		return
	}
	m.progress.Save(m.ctx, m.seq.ID(), rec)
	m.lastSaved = rec
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
