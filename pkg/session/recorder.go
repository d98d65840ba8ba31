package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"audiotour/pkg/geo"
	"audiotour/pkg/logging"
	"audiotour/pkg/playback"
	"audiotour/pkg/store"
	"audiotour/pkg/tour"
)

// Event kinds of the trip history.
const (
	EventArrived  = "arrived"
	EventVisited  = "visited"
	EventRestart  = "restart"
	EventFinished = "finished"
	EventLost     = "location_lost"
)

// recorder turns machine notifications into trip history entries. Writes happen on their own
// goroutine so the event loop never waits on the database.
type recorder struct {
	sessionID string
	seq       *tour.Sequence
	events    store.EventStore
	pending   chan store.TourEvent
	lostOnce  bool
}

func newRecorder(sessionID string, seq *tour.Sequence, events store.EventStore) *recorder {
	return &recorder{
		sessionID: sessionID,
		seq:       seq,
		events:    events,
		pending:   make(chan store.TourEvent, 64),
	}
}

// run writes queued entries until ctx is done, then flushes what is left.
func (r *recorder) run(ctx context.Context) {
	for {
		select {
		case ev := <-r.pending:
			r.write(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.pending:
					r.write(context.WithoutCancel(ctx), ev)
				default:
					return
				}
			}
		}
	}
}

func (r *recorder) write(ctx context.Context, ev store.TourEvent) {
	logging.LogEvent(&logging.Event{
		Time:   ev.CreatedAt,
		Kind:   ev.Kind,
		Title:  r.title(ev.StopIndex),
		Detail: ev.Detail,
	})
	if r.events == nil {
		return
	}
	if err := r.events.AppendEvent(ctx, &ev); err != nil {
		slog.Error("Session: Failed to record tour event", "kind", ev.Kind, "error", err)
	}
}

func (r *recorder) title(index int) string {
	if e, err := r.seq.At(index); err == nil && e.Title != "" {
		return e.Title
	}
	return r.seq.Title()
}

func (r *recorder) add(kind string, index int, detail string) {
	ev := store.TourEvent{
		SessionID: r.sessionID,
		TourID:    r.seq.ID(),
		Kind:      kind,
		StopIndex: index,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	select {
	case r.pending <- ev:
	default:
		slog.Warn("Session: Event history backlog full, dropping", "kind", kind)
	}
}

func (r *recorder) SegmentActivated(_ string, index int, seg playback.Segment, _ bool) {
	switch seg {
	case playback.SegmentArrived:
		r.add(EventArrived, index, fmt.Sprintf("stop %d", index))
	case playback.SegmentEnding:
		r.add(EventFinished, index, "")
	}
	r.lostOnce = false
}

func (r *recorder) LocationEvaluated(string, int, float64, geo.Zone) {
	r.lostOnce = false
}

// LocationLost records the first failure of a run of failures.
func (r *recorder) LocationLost(_ string, err error) {
	if r.lostOnce {
		return
	}
	r.lostOnce = true
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	r.add(EventLost, -1, detail)
}

func (r *recorder) StopVisited(_ string, index int) {
	r.add(EventVisited, index, "")
}

func (r *recorder) Restarted(string) {
	r.add(EventRestart, 0, "")
}

func (r *recorder) StaleTimer(string, string) {}

func (r *recorder) PlayingChanged(string, playback.Segment, bool) {}
