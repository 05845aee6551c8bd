// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Sampler    SamplerConfig         `yaml:"sampler"`
	Decision   DecisionConfig        `yaml:"decision"`
	Playback   PlaybackConfig        `yaml:"playback"`
	Generation GenerationConfig      `yaml:"generation"`
	Anthropic  AnthropicConfig       `yaml:"anthropic"`
	Suno       SunoConfig            `yaml:"suno"`
	History    HistoryConfig         `yaml:"history"`
	Gates      map[string]GateConfig `yaml:"gates"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// SamplerConfig represents screen sampler configuration.
type SamplerConfig struct {
	Type       string         `yaml:"type" default:"directory" validate:"required"`
	IntervalMs int            `yaml:"interval_ms" default:"2000" validate:"gte=250,lte=60000"`
	Settings   map[string]any `yaml:"settings"`
}

// DecisionConfig represents decision engine configuration.
type DecisionConfig struct {
	// Gate evaluation order; unknown names fail at startup.
	Order []string `yaml:"order"`
}

// GateConfig represents a gate's configuration. Enabled is a tri-state:
// absent means enabled, so the threshold and cooldown gates run out of the
// box and a gate only drops out when the config says `enabled: false`.
type GateConfig struct {
	Enabled  *bool          `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	FadeSteps               int `yaml:"fade_steps" default:"10" validate:"gte=1,lte=100"`
	FadeStepMs              int `yaml:"fade_step_ms" default:"100" validate:"gte=10,lte=2000"`
	DefaultTrackDurationSec int `yaml:"default_track_duration_sec" default:"120" validate:"gte=10,lte=1800"`
}

// GenerationConfig represents generation coordinator configuration.
type GenerationConfig struct {
	RecentGenreCount int    `yaml:"recent_genre_count" default:"5" validate:"gte=0,lte=50"`
	StateDir         string `yaml:"state_dir" default:"state"`
}

// AnthropicConfig represents the vision analyzer API configuration.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key" validate:"required"`
	Model     string `yaml:"model" default:"claude-sonnet-4-20250514"`
	MaxTokens int    `yaml:"max_tokens" default:"1024" validate:"gte=256,lte=8192"`
	BaseURL   string `yaml:"base_url" default:"https://api.anthropic.com"`
}

// SunoConfig represents the track generation API configuration.
type SunoConfig struct {
	APIKey          string `yaml:"api_key" validate:"required"`
	BaseURL         string `yaml:"base_url" default:"https://api.sunoapi.org"`
	Model           string `yaml:"model" default:"V4_5"`
	PollIntervalSec int    `yaml:"poll_interval_sec" default:"5" validate:"gte=1,lte=60"`
	PollMaxAttempts int    `yaml:"poll_max_attempts" default:"36" validate:"gte=1,lte=500"`
}

// HistoryConfig represents the track history store configuration.
type HistoryConfig struct {
	DBPath string `yaml:"db_path" default:"state/history.db"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for API keys.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv("SUNO_API_KEY"); v != "" {
		c.Suno.APIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// SampleInterval returns the sampling cadence as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Sampler.IntervalMs) * time.Millisecond
}

// FadeStepInterval returns the delay between fade volume steps.
func (c *Config) FadeStepInterval() time.Duration {
	return time.Duration(c.Playback.FadeStepMs) * time.Millisecond
}

// DefaultTrackDuration returns the fallback track duration used when a
// generated clip could not be probed.
func (c *Config) DefaultTrackDuration() time.Duration {
	return time.Duration(c.Playback.DefaultTrackDurationSec) * time.Second
}

// PollInterval returns the generation status polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Suno.PollIntervalSec) * time.Second
}

// IsGateEnabled checks if a gate is enabled. Gates are on by default; only
// an explicit `enabled: false` disables one.
func (c *Config) IsGateEnabled(gateName string) bool {
	if g, ok := c.Gates[gateName]; ok && g.Enabled != nil {
		return *g.Enabled
	}
	return true
}

// GateSettings returns the settings for a gate.
func (c *Config) GateSettings(gateName string) map[string]any {
	if g, ok := c.Gates[gateName]; ok {
		return g.Settings
	}
	return nil
}

// GateOrder returns the configured gate evaluation order, falling back to
// threshold before cooldown.
func (c *Config) GateOrder() []string {
	if len(c.Decision.Order) > 0 {
		return c.Decision.Order
	}
	return []string{"threshold_gate", "cooldown_gate"}
}
