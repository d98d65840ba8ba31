package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	Tour     TourConfig     `yaml:"tour"`
	Playback PlaybackConfig `yaml:"playback"`
	Audio    AudioConfig    `yaml:"audio"`
	Location LocationConfig `yaml:"location"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path           string   `yaml:"path"`
	EventRetention Duration `yaml:"event_retention"` // trip history older than this is pruned at startup
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	WebRoot string `yaml:"web_root"` // built shell assets; empty disables static serving
}

// TourConfig selects the tour content file and the screen variant.
type TourConfig struct {
	Path    string `yaml:"path"`
	Preview bool   `yaml:"preview"` // no live triggering, no progress persistence
}

// PlaybackConfig holds the proximity and timing thresholds of the playback engine.
type PlaybackConfig struct {
	ArriveRadius    Distance `yaml:"arrive_radius"`
	ApproachRadius  Distance `yaml:"approach_radius"`
	DwellThreshold  Duration `yaml:"dwell_threshold"`
	ArrivedDelay    Duration `yaml:"arrived_delay"`
	BannerTTL       Duration `yaml:"banner_ttl"`
	ArriveMessage   string   `yaml:"arrive_message"`
	ApproachMessage string   `yaml:"approach_message"`
}

// AudioConfig holds settings for the five playback units.
type AudioConfig struct {
	MediaRoot        string   `yaml:"media_root"`
	ApproachingClip  string   `yaml:"approaching_clip"`
	ArrivedClip      string   `yaml:"arrived_clip"`
	ProgressInterval Duration `yaml:"progress_interval"`
	FadeIn           Duration `yaml:"fade_in"`
	Volume           float64  `yaml:"volume"`
}

// LocationConfig selects and configures the location source.
type LocationConfig struct {
	Provider     string       `yaml:"provider"` // "manual", "walker", "nats"
	ReadyTimeout Duration     `yaml:"ready_timeout"`
	Walker       WalkerConfig `yaml:"walker"`
	NATS         NATSConfig   `yaml:"nats"`
}

// WalkerConfig holds settings for the simulated walker.
type WalkerConfig struct {
	SpeedMps float64  `yaml:"speed_mps"`
	Interval Duration `yaml:"interval"`
	Dwell    Duration `yaml:"dwell"`
	Jitter   Distance `yaml:"jitter"`
	StartLat float64  `yaml:"start_lat"`
	StartLon float64  `yaml:"start_lon"`
}

// NATSConfig holds settings for the NATS location feed.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:           "./data/audiotour.db",
			EventRetention: Duration(90 * Day),
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Tour: TourConfig{
			Path: "./tours/tour.json",
		},
		Playback: PlaybackConfig{
			ArriveRadius:    Distance(18),
			ApproachRadius:  Distance(60),
			DwellThreshold:  Duration(60 * time.Second),
			ArrivedDelay:    Duration(10 * time.Second),
			BannerTTL:       Duration(15 * time.Second),
			ArriveMessage:   "You're here! Ready to hear the story?",
			ApproachMessage: "Almost there! Come a bit closer to hear the story.",
		},
		Audio: AudioConfig{
			MediaRoot:        "./tours",
			ApproachingClip:  "prompts/approaching.mp3",
			ArrivedClip:      "prompts/arrived.mp3",
			ProgressInterval: Duration(1 * time.Second),
			FadeIn:           Duration(150 * time.Millisecond),
			Volume:           1.0,
		},
		Location: LocationConfig{
			Provider:     "manual",
			ReadyTimeout: Duration(10 * time.Second),
			Walker: WalkerConfig{
				SpeedMps: 1.4,
				Interval: Duration(1 * time.Second),
				Dwell:    Duration(90 * time.Second),
				Jitter:   Distance(3),
			},
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "audiotour.location",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it is created with default values.
// A .env file next to the working directory is loaded first; AUDIOTOUR_* variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AUDIOTOUR_TOUR"); v != "" {
		cfg.Tour.Path = v
	}
	if v := os.Getenv("AUDIOTOUR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("AUDIOTOUR_NATS_URL"); v != "" {
		cfg.Location.NATS.URL = v
	}
}

var providerPattern = regexp.MustCompile(`^(manual|walker|nats)$`)

// Validate checks thresholds and durations for consistency.
func (c *Config) Validate() error {
	p := c.Playback
	if p.ArriveRadius <= 0 || p.ApproachRadius <= 0 {
		return errors.New("playback radii must be positive")
	}
	if p.ArriveRadius >= p.ApproachRadius {
		return fmt.Errorf("arrive_radius (%.0fm) must be smaller than approach_radius (%.0fm)", p.ArriveRadius.Meters(), p.ApproachRadius.Meters())
	}
	if p.DwellThreshold <= 0 || p.ArrivedDelay <= 0 || p.BannerTTL <= 0 {
		return errors.New("playback durations must be positive")
	}
	if !providerPattern.MatchString(c.Location.Provider) {
		return fmt.Errorf("unknown location provider '%s': must be manual, walker or nats", c.Location.Provider)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Audiotour Configuration
# -----------------------
# Supported Units:
#   Duration: ms, s, m, h, d (day)
#   Distance: m (meters), km (kilometers), ft (feet)

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: manual, walker, nats\n${1}provider:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
