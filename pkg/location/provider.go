package location

import (
	"fmt"

	"audiotour/pkg/config"
	"audiotour/pkg/geo"
)

// NewSource creates the configured source. route is only used by the walker.
func NewSource(cfg config.LocationConfig, route []geo.Point) (Source, error) {
	switch cfg.Provider {
	case "", "manual":
		return NewManual(), nil
	case "walker":
		if len(route) == 0 {
			return nil, fmt.Errorf("walker needs at least one stop with coordinates")
		}
		return NewWalker(cfg.Walker, route), nil
	case "nats":
		return NewNATSSource(cfg.NATS), nil
	}
	return nil, fmt.Errorf("unknown location provider: %s", cfg.Provider)
}
