package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/adalundhe/rebound/core/advisory"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REBOUND_"

type envOverride struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envOverrides = []envOverride{
	{"HIGH_CONFIDENCE_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Engine.HighConfidence })},
	{"TOP_K", intVar(func(c *Config) *int { return &c.Engine.TopK })},
	{"HISTORY_DECAY", floatVar(func(c *Config) *float64 { return &c.Engine.HistoryDecay })},
	{"ESCALATION_AVAILABLE", boolVar(func(c *Config) *bool { return &c.Engine.EscalationAvailable })},
	{"CIRCUIT_THRESHOLD", intVar(func(c *Config) *int { return &c.Circuit.Threshold })},
	{"CIRCUIT_WINDOW", durationVar(func(c *Config) *time.Duration { return &c.Circuit.Window })},
	{"CIRCUIT_TRIP_DURATION", durationVar(func(c *Config) *time.Duration { return &c.Circuit.TripDuration })},
	{"ADVISORY_PROVIDER", func(c *Config, v string) error {
		p, err := advisory.ParseProvider(v)
		if err != nil {
			return err
		}
		c.Advisory.Backend.Provider = p
		return nil
	}},
	{"ADVISORY_MODEL", stringVar(func(c *Config) *string { return &c.Advisory.Backend.Model })},
	{"ADVISORY_BASE_URL", stringVar(func(c *Config) *string { return &c.Advisory.Backend.BaseURL })},
	{"ADVISORY_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Advisory.Adapter.Timeout })},
	{"PATTERNS_FILE", stringVar(func(c *Config) *string { return &c.Patterns.File })},
	{"PATTERNS_WATCH", boolVar(func(c *Config) *bool { return &c.Patterns.Watch })},
	{"HISTORY_PATH", stringVar(func(c *Config) *string { return &c.History.Path })},
	{"SERVER_ADDR", stringVar(func(c *Config) *string { return &c.Server.Addr })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Log.Format })},
}

// applyEnvironment applies every REBOUND_* variable that lookup finds. A
// malformed value is an error rather than silently ignored.
func applyEnvironment(cfg *Config, lookup func(string) (string, bool)) error {
	for _, o := range envOverrides {
		name := EnvPrefix + o.name
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
