// Package config loads engine configuration from YAML with env overrides.
//
// The dedup distance threshold is deliberately not defaulted: every enabled
// category must carry an explicit threshold or verification fails.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joshband/copy-that-sub005/internal/dedupe"
	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/platform/envutil"
)

type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Log        LogConfig        `yaml:"log"`
}

type ExtractionConfig struct {
	// MaxWorkers bounds the extractor dispatch pool.
	MaxWorkers int `yaml:"max_workers"`
	// QueueSize bounds the outcome channel; a full queue backpressures
	// extractors instead of growing unbounded.
	QueueSize int `yaml:"queue_size"`
	// ExtractorTimeout caps a single extractor run; zero means no cap
	// beyond the caller's context.
	ExtractorTimeout time.Duration `yaml:"extractor_timeout"`
}

type DedupeConfig struct {
	// Confidence selects the merged-confidence policy: max | weighted_mean.
	Confidence string `yaml:"confidence"`
	// Thresholds maps category name to its perceptual distance threshold.
	// Required per enabled category; there is no default.
	Thresholds map[string]float64 `yaml:"thresholds"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

// Load reads path (optional), applies env overrides, sanitizes and verifies.
func Load(path string, categories []domain.TokenType) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.sanitize()
	if err := cfg.Verify(categories); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Extraction.MaxWorkers = envutil.Int("TOKENGRAPH_MAX_WORKERS", c.Extraction.MaxWorkers)
	c.Extraction.QueueSize = envutil.Int("TOKENGRAPH_QUEUE_SIZE", c.Extraction.QueueSize)
	c.Extraction.ExtractorTimeout = envutil.Duration("TOKENGRAPH_EXTRACTOR_TIMEOUT", c.Extraction.ExtractorTimeout)
	c.Log.Mode = envutil.Str("LOG_MODE", c.Log.Mode)
	c.Dedupe.Confidence = envutil.Str("TOKENGRAPH_DEDUPE_CONFIDENCE", c.Dedupe.Confidence)
}

func (c *Config) sanitize() {
	if c.Extraction.MaxWorkers < 1 {
		c.Extraction.MaxWorkers = 4
	}
	if c.Extraction.QueueSize < 1 {
		c.Extraction.QueueSize = 16
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
	if c.Dedupe.Confidence == "" {
		c.Dedupe.Confidence = string(dedupe.ConfidenceMax)
	}
}

// Verify checks that every category the caller intends to run has an
// explicit positive threshold and that enum fields hold known values.
func (c *Config) Verify(categories []domain.TokenType) error {
	switch dedupe.ConfidencePolicy(c.Dedupe.Confidence) {
	case dedupe.ConfidenceMax, dedupe.ConfidenceWeightedMean:
	default:
		return fmt.Errorf("config: unknown dedupe confidence policy %q", c.Dedupe.Confidence)
	}
	for _, cat := range categories {
		if !cat.Known() {
			return fmt.Errorf("config: unknown category %q", cat)
		}
		th, ok := c.Dedupe.Thresholds[string(cat)]
		if !ok {
			return fmt.Errorf("config: category %s enabled without an explicit dedupe threshold", cat)
		}
		if th <= 0 {
			return fmt.Errorf("config: category %s threshold must be positive, got %v", cat, th)
		}
	}
	return nil
}

// MergerConfig builds the dedupe configuration for one category. The
// threshold must have been verified present.
func (c *Config) MergerConfig(cat domain.TokenType) dedupe.Config {
	return dedupe.Config{
		Threshold:  c.Dedupe.Thresholds[string(cat)],
		Confidence: dedupe.ConfidencePolicy(c.Dedupe.Confidence),
	}
}
