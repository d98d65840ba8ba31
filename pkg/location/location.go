// Package location provides the position sources that feed the playback machine.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"audiotour/pkg/geo"
)

var (
	// ErrPermissionDenied is reported when the user refused location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrTimeout is reported when no fix arrived in time.
	ErrTimeout = errors.New("location timeout")
)

// Fix is one position reading.
type Fix struct {
	Point      geo.Point `json:"point"`
	Accuracy   float64   `json:"accuracy"` // meters, 0 if unknown
	Heading    float64   `json:"heading"`
	Speed      float64   `json:"speed"` // m/s
	HasHeading bool      `json:"has_heading"`
	Time       time.Time `json:"time"`
}

// Update carries either a fix or an error.
type Update struct {
	Fix *Fix
	Err error
}

// Source emits position updates at irregular intervals.
type Source interface {
	// Watch subscribes to updates. The channel closes when ctx is cancelled or the source closes.
	Watch(ctx context.Context) (<-chan Update, error)
	// Ready is closed once the source can deliver updates.
	Ready() <-chan struct{}
	Close() error
}

// readiness is a one-shot notification.
type readiness struct {
	once sync.Once
	ch   chan struct{}
}

func newReadiness() *readiness {
	return &readiness{ch: make(chan struct{})}
}

func (r *readiness) signal() {
	r.once.Do(func() { close(r.ch) })
}

func (r *readiness) wait() <-chan struct{} {
	return r.ch
}

// AwaitReady blocks until src is ready, ctx is done or timeout elapses (timeout <= 0 waits on ctx only).
func AwaitReady(ctx context.Context, src Source, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-src.Ready():
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// fanout delivers updates to all watchers. A full watcher loses its oldest update.
type fanout struct {
	mu       sync.Mutex
	watchers map[int]chan Update
	next     int
	closed   bool
}

func newFanout() *fanout {
	return &fanout{watchers: make(map[int]chan Update)}
}

func (f *fanout) watch(ctx context.Context) (<-chan Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("location source closed")
	}
	ch := make(chan Update, 8)
	id := f.next
	f.next++
	f.watchers[id] = ch

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.watchers[id]; ok {
			delete(f.watchers, id)
			close(c)
		}
	}()
	return ch, nil
}

func (f *fanout) send(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.watchers {
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.watchers {
		delete(f.watchers, id)
		close(ch)
	}
}

// annotate fills heading and speed from the track when the reading has none.
func annotate(tr *geo.Track, fix *Fix) {
	if fix.Time.IsZero() {
		fix.Time = time.Now()
	}
	heading, speed, ok := tr.Push(fix.Point, fix.Time)
	if !fix.HasHeading && ok {
		fix.Heading = heading
		fix.HasHeading = true
	}
	if fix.Speed == 0 {
		fix.Speed = speed
	}
}
