// Package config handles Plexus configuration: process-wide settings via
// environment variables, and per-context tuning loadable from YAML.
//
// Configuration is loaded from environment variables using LoadFromEnv()
// and can be validated with Validate() before use, following the same
// two-step shape the teacher repo's config package uses for its Neo4j-
// compatible environment variables.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment Variables:
//
//	PLEXUS_STORE_KIND      - "badger" (default) or "memory"
//	PLEXUS_STORE_PATH      - data directory for the badger store
//	PLEXUS_METRICS_ENABLED - "true"/"false", default true
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds process-wide settings loaded from environment variables.
type Config struct {
	// StoreKind selects the persistence store implementation: "badger" or
	// "memory" (in-memory badger, non-durable).
	StoreKind string

	// StorePath is the directory the badger store writes to. Ignored when
	// StoreKind is "memory".
	StorePath string

	// MetricsEnabled toggles Prometheus metric registration.
	MetricsEnabled bool
}

// LoadFromEnv builds a Config from PLEXUS_* environment variables, falling
// back to defaults for anything unset.
func LoadFromEnv() Config {
	cfg := Config{
		StoreKind:      getEnv("PLEXUS_STORE_KIND", "badger"),
		StorePath:      getEnv("PLEXUS_STORE_PATH", "./data/plexus"),
		MetricsEnabled: getEnvBool("PLEXUS_METRICS_ENABLED", true),
	}
	return cfg
}

// Validate reports whether the config is usable.
func (c Config) Validate() error {
	switch c.StoreKind {
	case "badger", "memory":
	default:
		return fmt.Errorf("config: unknown PLEXUS_STORE_KIND %q (want badger or memory)", c.StoreKind)
	}
	if c.StoreKind == "badger" && c.StorePath == "" {
		return fmt.Errorf("config: PLEXUS_STORE_PATH must not be empty for the badger store")
	}
	return nil
}

// ContextConfig holds per-context tuning: the weight-normalization floor,
// the enrichment round ceiling, the proposal sink's contribution cap, and
// per-enrichment parameter tables. Loadable from YAML, following the
// teacher's apoc/config.go declarative-config pattern.
type ContextConfig struct {
	// FloorCoefficient is alpha in the scale-normalization formula: the
	// minimum share of an adapter's normalized range a contribution can
	// be pushed down to, even at the bottom of that adapter's range.
	FloorCoefficient float64 `yaml:"floorCoefficient"`

	// EnrichmentRoundCeiling bounds the enrichment loop: it stops once
	// this many rounds have run even if events are still being produced,
	// so a misbehaving enrichment cannot spin forever.
	EnrichmentRoundCeiling int `yaml:"enrichmentRoundCeiling"`

	// ContributionCap bounds the magnitude a ProposalSink will accept from
	// a single enrichment-authored contribution before clamping it and
	// recording a ContributionClamped rejection.
	ContributionCap float64 `yaml:"contributionCap"`

	// EnrichmentParams holds free-form per-enrichment tuning, keyed by
	// enrichment id (e.g. "co-occurrence": {"minCount": 2}).
	EnrichmentParams map[string]map[string]any `yaml:"enrichmentParams"`
}

// DefaultContextConfig returns the out-of-the-box tuning spec.md's examples
// assume.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		FloorCoefficient:       0.01,
		EnrichmentRoundCeiling: 10,
		ContributionCap:        1.0,
		EnrichmentParams:       make(map[string]map[string]any),
	}
}

// LoadContextConfig reads a YAML document into a ContextConfig seeded with
// DefaultContextConfig's values, so a partial document only overrides what
// it mentions.
func LoadContextConfig(data []byte) (ContextConfig, error) {
	cfg := DefaultContextConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ContextConfig{}, fmt.Errorf("config: parse context config: %w", err)
	}
	return cfg, nil
}

// Validate reports whether the context config is usable.
func (c ContextConfig) Validate() error {
	if c.FloorCoefficient < 0 || c.FloorCoefficient > 1 {
		return fmt.Errorf("config: floorCoefficient %v out of [0,1]", c.FloorCoefficient)
	}
	if c.EnrichmentRoundCeiling < 1 {
		return fmt.Errorf("config: enrichmentRoundCeiling must be >= 1")
	}
	if c.ContributionCap <= 0 {
		return fmt.Errorf("config: contributionCap must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
