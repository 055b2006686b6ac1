// Package config loads the agent's TOML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backoff tunes setup retry delays, expressed in scheduler ticks.
type Backoff struct {
	InitialTicks uint64  `toml:"initial_ticks"`
	Multiplier   float64 `toml:"multiplier"`
	MaxTicks     uint64  `toml:"max_ticks"`
	Jitter       bool    `toml:"jitter"`
}

// Function declares one RAN function advertised during setup.
type Function struct {
	ID          uint32 `toml:"id"`
	Revision    uint16 `toml:"revision"`
	Description string `toml:"description"`
}

// Config is the full agent configuration.
type Config struct {
	Name              string        `toml:"name"`
	RICAddress        string        `toml:"ric_address"`
	BindAddress       string        `toml:"bind_address"`
	NodeID            uint64        `toml:"node_id"`
	TickPeriod        time.Duration `toml:"-"`
	SetupTimeoutTicks uint64        `toml:"setup_timeout_ticks"`
	MaxSubscriptions  int           `toml:"max_subscriptions"`
	AdminAddress      string        `toml:"admin_address"`
	LogLevel          string        `toml:"log_level"`
	Backoff           Backoff       `toml:"backoff"`
	Functions         []Function    `toml:"functions"`
}

type fileConfig struct {
	Name              string     `toml:"name"`
	RICAddress        string     `toml:"ric_address"`
	BindAddress       string     `toml:"bind_address"`
	NodeID            uint64     `toml:"node_id"`
	TickPeriod        string     `toml:"tick_period"`
	SetupTimeoutTicks uint64     `toml:"setup_timeout_ticks"`
	MaxSubscriptions  int        `toml:"max_subscriptions"`
	AdminAddress      string     `toml:"admin_address"`
	LogLevel          string     `toml:"log_level"`
	Backoff           Backoff    `toml:"backoff"`
	Functions         []Function `toml:"functions"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Name:              "ricagent",
		TickPeriod:        time.Millisecond,
		SetupTimeoutTicks: 1000,
		MaxSubscriptions:  64,
		AdminAddress:      "",
		LogLevel:          "info",
		Backoff: Backoff{
			InitialTicks: 250,
			Multiplier:   2.0,
			MaxTicks:     5000,
			Jitter:       true,
		},
	}
}

// Load reads path, applies defaults for anything not set, and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("name") && strings.TrimSpace(raw.Name) != "" {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	cfg.RICAddress = strings.TrimSpace(raw.RICAddress)
	cfg.BindAddress = strings.TrimSpace(raw.BindAddress)
	cfg.NodeID = raw.NodeID
	if meta.IsDefined("tick_period") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.TickPeriod))
		if err != nil {
			return Config{}, fmt.Errorf("parse tick_period: %w", err)
		}
		cfg.TickPeriod = d
	}
	if meta.IsDefined("setup_timeout_ticks") {
		cfg.SetupTimeoutTicks = raw.SetupTimeoutTicks
	}
	if meta.IsDefined("max_subscriptions") {
		cfg.MaxSubscriptions = raw.MaxSubscriptions
	}
	if meta.IsDefined("admin_address") {
		cfg.AdminAddress = strings.TrimSpace(raw.AdminAddress)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("backoff", "initial_ticks") {
		cfg.Backoff.InitialTicks = raw.Backoff.InitialTicks
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "max_ticks") {
		cfg.Backoff.MaxTicks = raw.Backoff.MaxTicks
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}
	cfg.Functions = raw.Functions

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the agent cannot run with.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.RICAddress) == "" {
		return fmt.Errorf("config missing ric_address")
	}
	if cfg.TickPeriod <= 0 {
		return fmt.Errorf("config tick_period must be positive")
	}
	if cfg.SetupTimeoutTicks == 0 {
		return fmt.Errorf("config setup_timeout_ticks must be positive")
	}
	if cfg.MaxSubscriptions <= 0 {
		return fmt.Errorf("config max_subscriptions must be positive")
	}
	if cfg.Backoff.InitialTicks == 0 {
		return fmt.Errorf("config backoff.initial_ticks must be positive")
	}
	if cfg.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("config backoff.multiplier must be >= 1.0")
	}
	seen := make(map[uint32]struct{}, len(cfg.Functions))
	for i, fn := range cfg.Functions {
		if _, dup := seen[fn.ID]; dup {
			return fmt.Errorf("functions[%d]: duplicate function id %d", i, fn.ID)
		}
		seen[fn.ID] = struct{}{}
	}
	return nil
}
