// Package playback implements the proximity-driven playback state machine of a walking tour.
package playback

import (
	"time"

	"audiotour/pkg/geo"
)

// Segment is one of the five playable audio units, or none.
type Segment string

const (
	SegmentNone        Segment = "none"
	SegmentGreeting    Segment = "greeting"
	SegmentApproaching Segment = "approaching"
	SegmentArrived     Segment = "arrived"
	SegmentNarration   Segment = "narration"
	SegmentEnding      Segment = "ending"
)

// Segments lists the playable segments.
var Segments = []Segment{SegmentGreeting, SegmentApproaching, SegmentArrived, SegmentNarration, SegmentEnding}

// Mode selects the screen variant.
type Mode string

const (
	ModeLive    Mode = "live"
	ModePreview Mode = "preview" // no live triggering, no persistence
)

// Player is one addressable audio unit.
type Player interface {
	Load(src string) error
	Play() error
	Pause()
	Seek(pos time.Duration) error
	Elapsed() time.Duration
	Total() time.Duration
}

// Deck maps each segment to its player. Missing entries are skipped.
type Deck map[Segment]Player

// Banner is a transient proximity message shown by the shell.
type Banner struct {
	Message string    `json:"message"`
	Expires time.Time `json:"expires"`
	Pulse   uint64    `json:"pulse"` // haptic pulse counter at publish time
}

// Snapshot is a read-only copy of the playback state.
//
// Once the arrived prompt finishes, the machine waits out the arrived delay with Segment
// arrived and Playing false. A toggle during that wait does not flip Playing on the arrived
// segment: it moves straight to narration with Playing true and clears the banner.
type Snapshot struct {
	TourID   string     `json:"tour_id"`
	Mode     Mode       `json:"mode"`
	Index    int        `json:"active_stop_index"`
	Length   int        `json:"length"`
	Segment  Segment    `json:"active_segment"`
	Playing  bool       `json:"is_playing"`
	Visited  []int      `json:"visited"`
	Banner   *Banner    `json:"banner,omitempty"`
	Pulse    uint64     `json:"haptic_pulse"`
	Location *geo.Point `json:"location,omitempty"`
	Epoch    uint64     `json:"epoch"`
	Elapsed  float64    `json:"elapsed_s"`
	Total    float64    `json:"total_s"`
}

// IsVisited reports whether index is in the visited set.
func (s Snapshot) IsVisited(index int) bool {
	for _, v := range s.Visited {
		if v == index {
			return true
		}
	}
	return false
}

// Settings holds the thresholds and messages of the machine.
type Settings struct {
	Radii           geo.Radii
	Dwell           time.Duration
	ArrivedDelay    time.Duration
	BannerTTL       time.Duration
	ArriveMessage   string
	ApproachMessage string
}

// DefaultSettings returns the standard walking-tour settings.
func DefaultSettings() Settings {
	return Settings{
		Radii:           geo.DefaultRadii(),
		Dwell:           60 * time.Second,
		ArrivedDelay:    10 * time.Second,
		BannerTTL:       15 * time.Second,
		ArriveMessage:   "You're here! Ready to hear the story?",
		ApproachMessage: "Almost there! Come a bit closer to hear the story.",
	}
}
