package agent

import (
	"math"
	"math/rand"
)

// BackoffConfig defines retry backoff behavior in scheduler ticks.
type BackoffConfig struct {
	InitialTicks uint64
	Multiplier   float64
	MaxTicks     uint64
	Jitter       bool
}

// DefaultBackoffConfig returns the setup retry defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialTicks: 250,
		Multiplier:   2.0,
		MaxTicks:     5000,
		Jitter:       true,
	}
}

// nextBackoffTicks returns the retry delay for attempt N (1-based).
func nextBackoffTicks(cfg BackoffConfig, attempt int, rng *rand.Rand) uint64 {
	if cfg.InitialTicks == 0 {
		return 0
	}
	if attempt <= 1 {
		return cfg.InitialTicks
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialTicks) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxTicks > 0 && delay > float64(cfg.MaxTicks) {
		delay = float64(cfg.MaxTicks)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	if delay < 1 {
		return 1
	}
	return uint64(delay)
}
