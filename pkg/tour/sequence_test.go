package tour

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestTour(t *testing.T) *Content {
	t.Helper()
	c, err := LoadFile("testdata/tour.json")
	require.NoError(t, err)
	return c
}

func TestBuild(t *testing.T) {
	seq, err := Build(loadTestTour(t))
	require.NoError(t, err)

	assert.Equal(t, "mission-murals", seq.ID())
	assert.Equal(t, 5, seq.Len())

	first, _ := seq.At(0)
	assert.Equal(t, KindGreeting, first.Kind)
	assert.Equal(t, "audio/greeting.mp3", first.Audio)

	last, _ := seq.At(4)
	assert.Equal(t, KindEnding, last.Kind)
	assert.Equal(t, 4, last.Index)

	stop, _ := seq.At(1)
	assert.Equal(t, "Balmy Alley", stop.Title)
	require.NotNil(t, stop.Coords)
	assert.InDelta(t, -122.4122, stop.Coords.Lon, 1e-9)

	noCoords, _ := seq.At(3)
	assert.Nil(t, noCoords.Coords)

	_, err = seq.At(5)
	assert.Error(t, err)
}

func TestBuild_Incomplete(t *testing.T) {
	full := func() *Content {
		c, _ := Load(strings.NewReader(`{"tour_id":"t","stops":[{"name":"a"}],
			"greeting":{"audio":"g.mp3"},"ending":{"audio":"e.mp3"}}`))
		return c
	}

	tests := []struct {
		name        string
		content     func() *Content
		wantMissing []string
		wantNoStops bool
	}{
		{"Nil content", func() *Content { return nil }, []string{"tour", "greeting", "ending"}, false},
		{"No stops", func() *Content { c := full(); c.Stops = nil; return c }, []string{"tour"}, true},
		{"No greeting", func() *Content { c := full(); c.Greeting = nil; return c }, []string{"greeting"}, false},
		{"No bookends", func() *Content { c := full(); c.Greeting, c.Ending = nil, nil; return c }, []string{"greeting", "ending"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.content())
			var ice *IncompleteContentError
			require.True(t, errors.As(err, &ice), "want IncompleteContentError, got %v", err)
			assert.Equal(t, tt.wantMissing, ice.Missing)
			assert.Equal(t, tt.wantNoStops, errors.Is(err, ErrNoStops))
		})
	}
}

func TestSequence_Bounds(t *testing.T) {
	seq, err := Build(loadTestTour(t))
	require.NoError(t, err)

	tests := []struct {
		i       int
		inRange bool
		real    bool
		isFirst bool
		isLast  bool
	}{
		{-1, false, false, false, false},
		{0, true, false, true, false},
		{1, true, true, false, false},
		{3, true, true, false, false},
		{4, true, false, false, true},
		{5, false, false, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.inRange, seq.InRange(tt.i), "InRange(%d)", tt.i)
		assert.Equal(t, tt.real, seq.IsRealStop(tt.i), "IsRealStop(%d)", tt.i)
		assert.Equal(t, tt.isFirst, seq.IsFirst(tt.i), "IsFirst(%d)", tt.i)
		assert.Equal(t, tt.isLast, seq.IsLast(tt.i), "IsLast(%d)", tt.i)
	}
}

func TestSequence_GeoJSON(t *testing.T) {
	seq, err := Build(loadTestTour(t))
	require.NoError(t, err)

	fc := seq.GeoJSON()
	require.Len(t, fc.Features, 2)
	assert.Equal(t, 1, fc.Features[0].Properties["index"])
	assert.Equal(t, "The Women's Building", fc.Features[1].Properties["title"])

	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"coordinates":[-122.4122,37.7522]`)
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(strings.NewReader(`{"stops": [`))
	assert.Error(t, err)

	_, err = LoadFile("testdata/missing.json")
	assert.Error(t, err)
}
