package config

import (
	"context"
	"strconv"
	"time"

	"audiotour/pkg/store"
)

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	// Playback
	ArriveRadius(ctx context.Context) float64
	ApproachRadius(ctx context.Context) float64
	DwellThreshold(ctx context.Context) time.Duration
	ArrivedDelay(ctx context.Context) time.Duration
	BannerTTL(ctx context.Context) time.Duration

	// Location
	LocationProvider(ctx context.Context) string
	WalkerSpeed(ctx context.Context) float64

	// Effective returns a copy of the base config with all overrides applied.
	Effective(ctx context.Context) *Config

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// --- Implementations ---

func (p *UnifiedProvider) ArriveRadius(ctx context.Context) float64 {
	return p.getDistance(ctx, KeyArriveRadius, p.base.Playback.ArriveRadius.Meters())
}

func (p *UnifiedProvider) ApproachRadius(ctx context.Context) float64 {
	return p.getDistance(ctx, KeyApproachRadius, p.base.Playback.ApproachRadius.Meters())
}

func (p *UnifiedProvider) DwellThreshold(ctx context.Context) time.Duration {
	return p.getDuration(ctx, KeyDwellThreshold, p.base.Playback.DwellThreshold.Std())
}

func (p *UnifiedProvider) ArrivedDelay(ctx context.Context) time.Duration {
	return p.getDuration(ctx, KeyArrivedDelay, p.base.Playback.ArrivedDelay.Std())
}

func (p *UnifiedProvider) BannerTTL(ctx context.Context) time.Duration {
	return p.getDuration(ctx, KeyBannerTTL, p.base.Playback.BannerTTL.Std())
}

func (p *UnifiedProvider) LocationProvider(ctx context.Context) string {
	v := p.getString(ctx, KeyLocationProvider, p.base.Location.Provider)
	if !providerPattern.MatchString(v) {
		return p.base.Location.Provider
	}
	return v
}

func (p *UnifiedProvider) WalkerSpeed(ctx context.Context) float64 {
	return p.getFloat64(ctx, KeyWalkerSpeed, p.base.Location.Walker.SpeedMps)
}

// Effective applies the overrides. An override set that fails validation is ignored as a whole.
func (p *UnifiedProvider) Effective(ctx context.Context) *Config {
	cfg := *p.base
	cfg.Playback.ArriveRadius = Distance(p.ArriveRadius(ctx))
	cfg.Playback.ApproachRadius = Distance(p.ApproachRadius(ctx))
	cfg.Playback.DwellThreshold = Duration(p.DwellThreshold(ctx))
	cfg.Playback.ArrivedDelay = Duration(p.ArrivedDelay(ctx))
	cfg.Playback.BannerTTL = Duration(p.BannerTTL(ctx))
	cfg.Location.Provider = p.LocationProvider(ctx)
	cfg.Location.Walker.SpeedMps = p.WalkerSpeed(ctx)
	if err := cfg.Validate(); err != nil {
		return p.base
	}
	return &cfg
}

// --- Helpers ---

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getDistance(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if m, err := ParseDistance(val); err == nil && m > 0 {
				return m
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getDuration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if dur, err := ParseDuration(val); err == nil && dur > 0 {
				return dur
			}
		}
	}
	return fallback
}
