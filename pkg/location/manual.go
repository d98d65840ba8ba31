package location

import (
	"context"
	"log/slog"

	"audiotour/pkg/geo"
)

// Manual is a source fed by the presentation shell.
type Manual struct {
	out   *fanout
	ready *readiness
	track *geo.Track
}

// NewManual creates a manual source. It is ready immediately.
func NewManual() *Manual {
	m := &Manual{
		out:   newFanout(),
		ready: newReadiness(),
		track: geo.NewTrack(5),
	}
	m.ready.signal()
	return m
}

func (m *Manual) Watch(ctx context.Context) (<-chan Update, error) {
	return m.out.watch(ctx)
}

func (m *Manual) Ready() <-chan struct{} {
	return m.ready.wait()
}

// Push delivers a position reading.
func (m *Manual) Push(fix Fix) {
	annotate(m.track, &fix)
	m.out.send(Update{Fix: &fix})
	slog.Debug("Location: Manual fix", "lat", fix.Point.Lat, "lon", fix.Point.Lon, "accuracy", fix.Accuracy)
}

// PushError delivers a location failure.
func (m *Manual) PushError(err error) {
	m.track.Reset()
	m.out.send(Update{Err: err})
}

func (m *Manual) Close() error {
	m.out.close()
	return nil
}
