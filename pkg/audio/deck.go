package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"audiotour/pkg/config"
	"audiotour/pkg/playback"
	"audiotour/pkg/store"
	"audiotour/pkg/tour"
)

// VolumeStateKey is the state store key of the persisted volume.
const VolumeStateKey = "volume"

// Listener receives completion and elapsed-time notifications from the units.
type Listener interface {
	SegmentEnded(seg playback.Segment)
	SegmentProgress(seg playback.Segment, elapsed time.Duration)
}

// Deck owns the five units of a tour.
type Deck struct {
	cfg   config.AudioConfig
	st    store.StateStore
	units map[playback.Segment]*Unit

	mu       sync.RWMutex
	volume   float64
	listener Listener
}

// NewDeck builds the units and loads the fixed media: greeting and ending from the tour
// bookends, approaching and arrived from the configured prompt clips. The narration unit is
// loaded per stop by the machine. Media failures are logged, not returned.
func NewDeck(ctx context.Context, cfg config.AudioConfig, seq *tour.Sequence, st store.StateStore) *Deck {
	d := &Deck{
		cfg:    cfg,
		st:     st,
		units:  make(map[playback.Segment]*Unit, len(playback.Segments)),
		volume: clampVolume(cfg.Volume),
	}
	for _, seg := range playback.Segments {
		d.units[seg] = newUnit(seg, d)
	}

	if st != nil {
		if volStr, ok := st.GetState(ctx, VolumeStateKey); ok && volStr != "" {
			var val float64
			if _, err := fmt.Sscanf(volStr, "%f", &val); err == nil {
				d.volume = clampVolume(val)
			}
		}
	}

	fixed := map[playback.Segment]string{
		playback.SegmentApproaching: cfg.ApproachingClip,
		playback.SegmentArrived:     cfg.ArrivedClip,
	}
	if seq != nil {
		if e, err := seq.At(0); err == nil {
			fixed[playback.SegmentGreeting] = e.Audio
		}
		if e, err := seq.At(seq.Len() - 1); err == nil {
			fixed[playback.SegmentEnding] = e.Audio
		}
	}
	for seg, ref := range fixed {
		if ref == "" {
			slog.Warn("Audio: No media for segment", "segment", seg)
			continue
		}
		if err := d.units[seg].Load(ref); err != nil {
			slog.Warn("Audio: Failed to load segment media", "segment", seg, "error", err)
		}
	}
	return d
}

// Players exposes the units to the playback machine.
func (d *Deck) Players() playback.Deck {
	out := make(playback.Deck, len(d.units))
	for seg, u := range d.units {
		out[seg] = u
	}
	return out
}

// Unit returns the unit of a segment.
func (d *Deck) Unit(seg playback.Segment) *Unit {
	return d.units[seg]
}

// SetListener sets the receiver of unit notifications.
func (d *Deck) SetListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = l
}

// Listener returns the current receiver of unit notifications.
func (d *Deck) Listener() Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listener
}

// SetVolume sets the playback volume (0.0 to 1.0) of all units and persists it.
func (d *Deck) SetVolume(ctx context.Context, vol float64) {
	vol = clampVolume(vol)
	d.mu.Lock()
	d.volume = vol
	d.mu.Unlock()

	for _, u := range d.units {
		u.applyVolume(vol)
	}

	if d.st != nil {
		if err := d.st.SetState(ctx, VolumeStateKey, fmt.Sprintf("%.2f", vol)); err != nil {
			slog.Error("Failed to persist volume", "error", err)
		}
	}
}

// Volume returns the current volume level.
func (d *Deck) Volume() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.volume
}

// Close releases all units.
func (d *Deck) Close() {
	for _, u := range d.units {
		u.Close()
	}
}
