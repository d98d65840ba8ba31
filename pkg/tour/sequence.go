package tour

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"

	"audiotour/pkg/geo"
)

// Kind distinguishes the bookends from real stops.
type Kind string

const (
	KindGreeting Kind = "greeting"
	KindStop     Kind = "stop"
	KindEnding   Kind = "ending"
)

// ErrNoStops is wrapped by IncompleteContentError when a tour has no real stops.
var ErrNoStops = errors.New("tour has no stops")

// IncompleteContentError reports which parts of the tour content are missing.
type IncompleteContentError struct {
	Missing []string // "tour", "greeting", "ending"
	Err     error
}

func (e *IncompleteContentError) Error() string {
	msg := "incomplete tour content: missing " + strings.Join(e.Missing, ", ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IncompleteContentError) Unwrap() error {
	return e.Err
}

// Entry is one position of the sequence.
type Entry struct {
	Index  int        `json:"index"`
	Kind   Kind       `json:"kind"`
	ID     string     `json:"id,omitempty"`
	Title  string     `json:"title"`
	Text   string     `json:"text"`
	Teaser string     `json:"teaser,omitempty"`
	Audio  string     `json:"audio"`
	Coords *geo.Point `json:"coords,omitempty"`
}

// Sequence is the immutable ordered list [greeting, stop_1..stop_n, ending].
type Sequence struct {
	id      string
	title   string
	entries []Entry
}

// Build validates the content and constructs the sequence.
func Build(c *Content) (*Sequence, error) {
	var missing []string
	var cause error
	switch {
	case c == nil:
		return nil, &IncompleteContentError{Missing: []string{"tour", "greeting", "ending"}}
	case len(c.Stops) == 0:
		missing = append(missing, "tour")
		cause = ErrNoStops
	}
	if c.Greeting == nil {
		missing = append(missing, "greeting")
	}
	if c.Ending == nil {
		missing = append(missing, "ending")
	}
	if len(missing) > 0 {
		return nil, &IncompleteContentError{Missing: missing, Err: cause}
	}

	entries := make([]Entry, 0, len(c.Stops)+2)
	entries = append(entries, Entry{
		Index: 0,
		Kind:  KindGreeting,
		Title: c.Greeting.Title,
		Text:  c.Greeting.Body,
		Audio: c.Greeting.Audio,
	})
	for i, s := range c.Stops {
		e := Entry{
			Index:  i + 1,
			Kind:   KindStop,
			ID:     s.POIID,
			Title:  s.Name,
			Text:   s.NarrationText,
			Teaser: s.Teaser,
			Audio:  s.NarrationAudio,
		}
		if s.Lat != nil && s.Lng != nil {
			e.Coords = &geo.Point{Lat: *s.Lat, Lon: *s.Lng}
		}
		entries = append(entries, e)
	}
	entries = append(entries, Entry{
		Index: len(entries),
		Kind:  KindEnding,
		Title: c.Ending.Title,
		Text:  c.Ending.Body,
		Audio: c.Ending.Audio,
	})

	id := c.TourID
	if id == "" {
		id = c.Title
	}
	return &Sequence{id: id, title: c.Title, entries: entries}, nil
}

// ID returns the tour identifier used as the progress key.
func (s *Sequence) ID() string { return s.id }

// Title returns the tour title.
func (s *Sequence) Title() string { return s.title }

// Len returns the number of entries including both bookends.
func (s *Sequence) Len() int { return len(s.entries) }

// InRange reports whether i addresses an entry.
func (s *Sequence) InRange(i int) bool { return i >= 0 && i < len(s.entries) }

// IsFirst reports whether i is the greeting.
func (s *Sequence) IsFirst(i int) bool { return i == 0 }

// IsLast reports whether i is the ending.
func (s *Sequence) IsLast(i int) bool { return i == len(s.entries)-1 }

// IsRealStop reports whether i is a stop between the bookends.
func (s *Sequence) IsRealStop(i int) bool { return i > 0 && i < len(s.entries)-1 }

// At returns the entry at i.
func (s *Sequence) At(i int) (Entry, error) {
	if !s.InRange(i) {
		return Entry{}, fmt.Errorf("index %d out of range [0,%d)", i, len(s.entries))
	}
	return s.entries[i], nil
}

// Entries returns a copy of all entries.
func (s *Sequence) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// GeoJSON returns the real stops with coordinates as point features.
func (s *Sequence) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range s.entries {
		if e.Kind != KindStop || e.Coords == nil {
			continue
		}
		fc.Append(geo.PointFeature(*e.Coords, map[string]interface{}{
			"index":  e.Index,
			"title":  e.Title,
			"teaser": e.Teaser,
		}))
	}
	return fc
}
