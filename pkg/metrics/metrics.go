// Package metrics exposes playback activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audiotour/pkg/geo"
	"audiotour/pkg/location"
	"audiotour/pkg/playback"
)

// Collector records machine notifications. It implements playback.Observer.
type Collector struct {
	reg *prometheus.Registry

	SegmentsActivated *prometheus.CounterVec // segment label
	Evaluations       *prometheus.CounterVec // zone label: far|approach|arrive
	StopsVisited      prometheus.Counter
	Restarts          prometheus.Counter
	StaleTimers       *prometheus.CounterVec // kind label: arrived_delay|banner_expired
	LocationErrors    *prometheus.CounterVec // reason label

	ActiveStop     prometheus.Gauge
	DistanceToStop prometheus.Gauge // meters
	Playing        prometheus.Gauge
	NATSConnected  prometheus.Gauge
	Volume         prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		SegmentsActivated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiotour_segments_activated_total",
			Help: "Segments made active, by segment.",
		}, []string{"segment"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiotour_location_evaluations_total",
			Help: "Location readings evaluated against the active stop, by zone.",
		}, []string{"zone"}),
		StopsVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiotour_stops_visited_total",
			Help: "Stops newly marked visited.",
		}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiotour_restarts_total",
			Help: "Tour restarts.",
		}),
		StaleTimers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiotour_stale_timers_total",
			Help: "Timer firings discarded because the stop changed or the timer was superseded.",
		}, []string{"kind"}),
		LocationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiotour_location_errors_total",
			Help: "Location failures reported by the source.",
		}, []string{"reason"}),
		ActiveStop: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiotour_active_stop_index",
			Help: "Index of the active sequence entry.",
		}),
		DistanceToStop: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiotour_distance_to_stop_meters",
			Help: "Distance from the last reading to the active stop.",
		}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiotour_playing",
			Help: "1 if audio is playing, 0 otherwise.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiotour_nats_connected",
			Help: "1 if the NATS location feed is connected, 0 otherwise.",
		}),
		Volume: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiotour_volume",
			Help: "Master volume (0-1).",
		}),
	}

	reg.MustRegister(
		c.SegmentsActivated, c.Evaluations, c.StopsVisited, c.Restarts,
		c.StaleTimers, c.LocationErrors,
		c.ActiveStop, c.DistanceToStop, c.Playing, c.NATSConnected, c.Volume,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) SegmentActivated(_ string, index int, seg playback.Segment, _ bool) {
	c.SegmentsActivated.WithLabelValues(string(seg)).Inc()
	c.ActiveStop.Set(float64(index))
}

func (c *Collector) PlayingChanged(_ string, _ playback.Segment, playing bool) {
	c.Playing.Set(boolGauge(playing))
}

func (c *Collector) LocationEvaluated(_ string, _ int, dist float64, zone geo.Zone) {
	c.Evaluations.WithLabelValues(string(zone)).Inc()
	c.DistanceToStop.Set(dist)
}

func (c *Collector) LocationLost(_ string, err error) {
	c.LocationErrors.WithLabelValues(lostReason(err)).Inc()
}

func (c *Collector) StopVisited(string, int) { c.StopsVisited.Inc() }

func (c *Collector) Restarted(string) { c.Restarts.Inc() }

func (c *Collector) StaleTimer(_ string, kind string) {
	c.StaleTimers.WithLabelValues(kind).Inc()
}

// SetNATSConnected records the feed connection state.
func (c *Collector) SetNATSConnected(connected bool) { c.NATSConnected.Set(boolGauge(connected)) }

// SetVolume records the master volume.
func (c *Collector) SetVolume(v float64) { c.Volume.Set(v) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func lostReason(err error) string {
	switch {
	case errors.Is(err, location.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, location.ErrTimeout):
		return "timeout"
	}
	return "other"
}

var _ playback.Observer = (*Collector)(nil)
