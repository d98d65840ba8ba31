package location

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"audiotour/pkg/config"
	"audiotour/pkg/geo"
)

const (
	walkerIdle    = "idle"
	walkerWalking = "walking"
	walkerDwell   = "dwelling"
	walkerDone    = "done"

	arrivalEpsilon = 1.0 // meters
)

// Walker simulates a participant walking the stops of a tour at a steady pace.
type Walker struct {
	cfg   config.WalkerConfig
	route []geo.Point

	mu         sync.Mutex
	pos        geo.Point
	heading    float64
	target     int
	state      string
	stateStart time.Time
	rng        *rand.Rand

	out    *fanout
	ready  *readiness
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	start  sync.Once
}

// NewWalker creates a walker along route. Without a configured start it begins 200 m south of the
// first point.
func NewWalker(cfg config.WalkerConfig, route []geo.Point) *Walker {
	w := &Walker{
		cfg:    cfg,
		route:  route,
		state:  walkerIdle,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		out:    newFanout(),
		ready:  newReadiness(),
		stopCh: make(chan struct{}),
	}
	switch {
	case cfg.StartLat != 0 || cfg.StartLon != 0:
		w.pos = geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon}
	case len(route) > 0:
		w.pos = geo.DestinationPoint(route[0], 200, 180)
	}
	return w
}

// Watch starts the walk on first use.
func (w *Walker) Watch(ctx context.Context) (<-chan Update, error) {
	ch, err := w.out.watch(ctx)
	if err != nil {
		return nil, err
	}
	w.start.Do(func() {
		w.mu.Lock()
		w.setState(walkerWalking, time.Now())
		w.mu.Unlock()
		w.wg.Add(1)
		go w.loop()
		w.ready.signal()
		slog.Info("Location: Walker started", "stops", len(w.route), "speed_mps", w.cfg.SpeedMps)
	})
	return ch, nil
}

func (w *Walker) Ready() <-chan struct{} {
	return w.ready.wait()
}

// Close stops the walk and releases watchers.
func (w *Walker) Close() error {
	w.once.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.out.close()
	})
	return nil
}

// Position returns the current simulated position.
func (w *Walker) Position() geo.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

func (w *Walker) loop() {
	defer w.wg.Done()
	interval := w.cfg.Interval.Std()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			fix, ok := w.step(now, interval)
			if ok {
				w.out.send(Update{Fix: &fix})
			}
		}
	}
}

// step advances the simulation by dt and returns the reported fix.
func (w *Walker) step(now time.Time, dt time.Duration) (Fix, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case walkerIdle, walkerDone:
		return Fix{}, false

	case walkerDwell:
		if now.Sub(w.stateStart) >= w.cfg.Dwell.Std() {
			w.target++
			if w.target >= len(w.route) {
				w.setState(walkerDone, now)
				slog.Info("Location: Walker finished the route")
			} else {
				w.setState(walkerWalking, now)
			}
		}

	case walkerWalking:
		if w.target >= len(w.route) {
			w.setState(walkerDone, now)
			break
		}
		dest := w.route[w.target]
		remaining := geo.Distance(w.pos, dest)
		stride := w.cfg.SpeedMps * dt.Seconds()
		// Distances round trip through lat/lon; a stop one stride away may measure a hair more.
		if remaining <= stride+arrivalEpsilon {
			w.pos = dest
			w.setState(walkerDwell, now)
			slog.Debug("Location: Walker reached stop", "target", w.target)
		} else {
			w.heading = geo.Bearing(w.pos, dest)
			w.pos = geo.DestinationPoint(w.pos, stride, w.heading)
		}
	}

	reported := w.pos
	if j := w.cfg.Jitter.Meters(); j > 0 {
		reported = geo.DestinationPoint(reported, w.rng.Float64()*j, w.rng.Float64()*360)
	}
	speed := 0.0
	if w.state == walkerWalking {
		speed = w.cfg.SpeedMps
	}
	return Fix{
		Point:      reported,
		Accuracy:   w.cfg.Jitter.Meters(),
		Heading:    w.heading,
		HasHeading: true,
		Speed:      speed,
		Time:       now,
	}, true
}

func (w *Walker) setState(state string, now time.Time) {
	w.state = state
	w.stateStart = now
}
