package probe

import (
	"context"
	"fmt"

	"audiotour/pkg/audio"
	"audiotour/pkg/tour"
)

// Pinger is satisfied by *db.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database checks that the state store answers.
func Database(p Pinger) Probe {
	return Probe{
		Name:     "Database",
		Critical: true,
		Check: func(ctx context.Context) error {
			return p.PingContext(ctx)
		},
	}
}

// MediaRefs returns every audio reference of a sequence plus the extra prompt clips.
func MediaRefs(seq *tour.Sequence, extra ...string) []string {
	var refs []string
	for _, e := range seq.Entries() {
		if e.Audio != "" {
			refs = append(refs, e.Audio)
		}
	}
	for _, r := range extra {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

// Media checks that the tour's audio files decode. Missing media only silences a segment, so
// the probe is not critical.
func Media(root string, refs []string) Probe {
	return Probe{
		Name: "Tour Media",
		Check: func(context.Context) error {
			if n := audio.CheckMedia(root, refs); n > 0 {
				return fmt.Errorf("%d of %d media files not playable", n, len(refs))
			}
			return nil
		},
	}
}
