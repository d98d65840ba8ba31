package geo

import (
	"sync"
	"time"
)

// Track keeps a short window of timestamped positions and derives walking heading and speed.
type Track struct {
	mu      sync.Mutex
	samples []trackSample
	window  int
}

type trackSample struct {
	p Point
	t time.Time
}

// NewTrack creates a track over the last window samples (minimum 2).
func NewTrack(window int) *Track {
	if window < 2 {
		window = 2
	}
	return &Track{window: window}
}

// Push records a position. It returns the heading in degrees and speed in m/s across the
// window; ok is false until two distinct samples exist.
func (tr *Track) Push(p Point, at time.Time) (heading, speed float64, ok bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.samples = append(tr.samples, trackSample{p: p, t: at})
	if len(tr.samples) > tr.window {
		tr.samples = tr.samples[1:]
	}
	if len(tr.samples) < 2 {
		return 0, 0, false
	}

	first, last := tr.samples[0], tr.samples[len(tr.samples)-1]
	dist := Distance(first.p, last.p)
	if dist == 0 {
		return 0, 0, false
	}
	if dt := last.t.Sub(first.t).Seconds(); dt > 0 {
		speed = dist / dt
	}
	return Bearing(first.p, last.p), speed, true
}

// Reset clears the window.
func (tr *Track) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.samples = nil
}
