// Package tour holds the tour content model and the immutable stop sequence built from it.
package tour

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Content is a tour as delivered by the content provider.
type Content struct {
	TourID      string        `json:"tour_id"`
	Title       string        `json:"title"`
	City        string        `json:"city"`
	Description string        `json:"description"`
	Mode        string        `json:"mode"`         // e.g. "walking"
	EffortLevel string        `json:"effort_level"` // e.g. "easy", "moderate"
	Stops       []StopContent `json:"stops"`
	Greeting    *Bookend      `json:"greeting"`
	Ending      *Bookend      `json:"ending"`
}

// StopContent is one real stop of a tour. Coordinates are optional.
type StopContent struct {
	POIID          string   `json:"poi_id"`
	Name           string   `json:"name"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Address        string   `json:"address"`
	Teaser         string   `json:"teaser"`
	NarrationText  string   `json:"narration_text"`
	NarrationAudio string   `json:"narration_audio"`
}

// Bookend is the greeting or ending of a tour.
type Bookend struct {
	Audio string `json:"audio"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Load decodes tour content from JSON.
func Load(r io.Reader) (*Content, error) {
	var c Content
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode tour: %w", err)
	}
	return &c, nil
}

// LoadFile reads tour content from a JSON file.
func LoadFile(path string) (*Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tour file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
