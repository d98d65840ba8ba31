package playback

import "audiotour/pkg/geo"

// Observer receives notifications about machine activity. Calls are made from the event loop
// and must not block.
type Observer interface {
	SegmentActivated(tourID string, index int, seg Segment, playing bool)
	// PlayingChanged reports every flip of the playing flag, whatever caused it.
	PlayingChanged(tourID string, seg Segment, playing bool)
	LocationEvaluated(tourID string, index int, dist float64, zone geo.Zone)
	LocationLost(tourID string, err error)
	StopVisited(tourID string, index int)
	Restarted(tourID string)
	StaleTimer(tourID string, kind string)
}

// Observers fans notifications out to several observers.
type Observers []Observer

func (o Observers) SegmentActivated(tourID string, index int, seg Segment, playing bool) {
	for _, ob := range o {
		ob.SegmentActivated(tourID, index, seg, playing)
	}
}

func (o Observers) PlayingChanged(tourID string, seg Segment, playing bool) {
	for _, ob := range o {
		ob.PlayingChanged(tourID, seg, playing)
	}
}

func (o Observers) LocationEvaluated(tourID string, index int, dist float64, zone geo.Zone) {
	for _, ob := range o {
		ob.LocationEvaluated(tourID, index, dist, zone)
	}
}

func (o Observers) LocationLost(tourID string, err error) {
	for _, ob := range o {
		ob.LocationLost(tourID, err)
	}
}

func (o Observers) StopVisited(tourID string, index int) {
	for _, ob := range o {
		ob.StopVisited(tourID, index)
	}
}

func (o Observers) Restarted(tourID string) {
	for _, ob := range o {
		ob.Restarted(tourID)
	}
}

func (o Observers) StaleTimer(tourID string, kind string) {
	for _, ob := range o {
		ob.StaleTimer(tourID, kind)
	}
}
