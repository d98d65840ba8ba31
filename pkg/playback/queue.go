package playback

import (
	"sync"
	"time"

	"audiotour/pkg/geo"
)

type eventKind int

const (
	evEvaluate eventKind = iota
	evLocation
	evLocationError
	evSegmentEnded
	evSegmentProgress
	evToggle
	evSkipTo
	evStep
	evRestart
	evSeek
	evArrivedDelay
	evBannerExpired
)

func (k eventKind) String() string {
	switch k {
	case evEvaluate:
		return "evaluate"
	case evLocation:
		return "location"
	case evLocationError:
		return "location_error"
	case evSegmentEnded:
		return "segment_ended"
	case evSegmentProgress:
		return "segment_progress"
	case evToggle:
		return "toggle"
	case evSkipTo:
		return "skip_to"
	case evStep:
		return "step"
	case evRestart:
		return "restart"
	case evSeek:
		return "seek"
	case evArrivedDelay:
		return "arrived_delay"
	case evBannerExpired:
		return "banner_expired"
	}
	return "unknown"
}

// event is the single input type of the transition function.
type event struct {
	kind    eventKind
	index   int
	segment Segment
	elapsed time.Duration
	loc     geo.Point
	err     error

	// Timer events carry the epoch and token they were scheduled under.
	epoch uint64
	token uint64
}

// queue is an unbounded FIFO of events. Push never blocks.
type queue struct {
	mu     sync.Mutex
	items  []event
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{
		items:  make([]event, 0),
		signal: make(chan struct{}, 1),
	}
}

// Push appends ev and wakes the consumer.
func (q *queue) Push(ev event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop retrieves and removes the oldest event.
func (q *queue) Pop() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return event{}, false
	}
	ev := q.items[0]
	q.items[0] = event{}
	q.items = q.items[1:]
	return ev, true
}

// Count returns the number of pending events.
func (q *queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

