package config

// Persistent state keys (Registry). Values override the config file on the next session open.
const (
	KeyArriveRadius     = "arrive_radius"
	KeyApproachRadius   = "approach_radius"
	KeyDwellThreshold   = "dwell_threshold"
	KeyArrivedDelay     = "arrived_delay"
	KeyBannerTTL        = "banner_ttl"
	KeyLocationProvider = "location_provider"
	KeyWalkerSpeed      = "walker_speed_mps"
)
