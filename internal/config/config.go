package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Refiner   RefinerConfig   `yaml:"refiner"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Queue     QueueConfig     `yaml:"queue"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Languages LanguagesConfig `yaml:"languages"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig configures the bidirectional transcription stream.
type SourceConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	MaxRetries int    `yaml:"max_retries"`
}

// RefinerConfig configures the external enrichment endpoint.
type RefinerConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// SegmenterConfig contains utterance segmentation thresholds.
type SegmenterConfig struct {
	MaxBufferChars   int `yaml:"max_buffer_chars"`
	PunctuationFloor int `yaml:"punctuation_floor"`
	MinSegmentChars  int `yaml:"min_segment_chars"`
}

// QueueConfig contains enrichment queue pacing and retry parameters.
type QueueConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	BackoffBaseMS  int     `yaml:"backoff_base_ms"`
	CooldownMS     int     `yaml:"cooldown_ms"`
	CooldownMinMS  int     `yaml:"cooldown_min_ms"`
	CooldownMaxMS  int     `yaml:"cooldown_max_ms"`
	ContextWindow  int     `yaml:"context_window"`
	CooldownGrow   float64 `yaml:"cooldown_grow"`
	CooldownShrink float64 `yaml:"cooldown_shrink"`
}

// SessionsConfig configures the session archive store.
type SessionsConfig struct {
	Dir string `yaml:"dir"`
}

// LanguagesConfig contains default bilingual language settings.
type LanguagesConfig struct {
	Primary     string `yaml:"primary"`
	Translation string `yaml:"translation"`
	Bilingual   bool   `yaml:"bilingual"`
}

// HTTPConfig configures the operational HTTP listener.
type HTTPConfig struct {
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Mode string `yaml:"mode"`
}

// Load reads and parses the configuration file; a missing file yields
// defaults so first launch works without any setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Defaults()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section for internally consistent values.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}
	if err := c.Refiner.Validate(); err != nil {
		return fmt.Errorf("refiner config: %w", err)
	}
	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}
	return nil
}

// Validate checks the stream source section.
func (c *SourceConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// Validate checks the refiner section.
func (c *RefinerConfig) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	return nil
}

// Validate checks the segmentation thresholds.
func (c *SegmenterConfig) Validate() error {
	if c.MinSegmentChars < 1 {
		return fmt.Errorf("min_segment_chars must be at least 1, got %d", c.MinSegmentChars)
	}
	if c.PunctuationFloor <= c.MinSegmentChars {
		return fmt.Errorf("punctuation_floor (%d) must exceed min_segment_chars (%d)", c.PunctuationFloor, c.MinSegmentChars)
	}
	if c.MaxBufferChars <= c.PunctuationFloor {
		return fmt.Errorf("max_buffer_chars (%d) must exceed punctuation_floor (%d)", c.MaxBufferChars, c.PunctuationFloor)
	}
	return nil
}

// Validate checks queue pacing and retry parameters.
func (c *QueueConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BackoffBaseMS <= 0 {
		return fmt.Errorf("backoff_base_ms must be positive, got %d", c.BackoffBaseMS)
	}
	if c.CooldownMinMS <= 0 || c.CooldownMaxMS < c.CooldownMinMS {
		return fmt.Errorf("cooldown band [%d, %d] is invalid", c.CooldownMinMS, c.CooldownMaxMS)
	}
	if c.CooldownMS < c.CooldownMinMS || c.CooldownMS > c.CooldownMaxMS {
		return fmt.Errorf("cooldown_ms %d outside band [%d, %d]", c.CooldownMS, c.CooldownMinMS, c.CooldownMaxMS)
	}
	if c.CooldownShrink <= 0 || c.CooldownShrink > 1 {
		return fmt.Errorf("cooldown_shrink must be in (0, 1], got %f", c.CooldownShrink)
	}
	if c.CooldownGrow < 1 {
		return fmt.Errorf("cooldown_grow must be at least 1, got %f", c.CooldownGrow)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("context_window must not be negative, got %d", c.ContextWindow)
	}
	return nil
}

// RefinerTimeout returns the refiner call timeout as a duration.
func (c *RefinerConfig) RefinerTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// LogMode returns the normalized logging mode.
func (c *LoggingConfig) LogMode() string {
	return strings.ToLower(strings.TrimSpace(c.Mode))
}
