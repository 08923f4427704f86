// Package config loads dimtab configuration from file, environment, and
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	TrackedSites   []string       `mapstructure:"tracked_sites"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	Blur           BlurConfig     `mapstructure:"blur"`
	Ticks          TicksConfig    `mapstructure:"ticks"`
	Override       OverrideConfig `mapstructure:"override"`
	Bridge         BridgeConfig   `mapstructure:"bridge"`
	Metrics        MetricsConfig  `mapstructure:"metrics"`
	Logging        LoggingConfig  `mapstructure:"logging"`
	DebugLogging   bool           `mapstructure:"debug_logging"`
}

// BlurConfig defines the intensity hint range and renderer ramp probability
type BlurConfig struct {
	IntensityMin int     `mapstructure:"intensity_min"`
	IntensityMax int     `mapstructure:"intensity_max"`
	Probability  float64 `mapstructure:"probability"`
}

// TicksConfig defines re-evaluation cadences
type TicksConfig struct {
	ControllerMs int `mapstructure:"controller_ms"`
	RendererMs   int `mapstructure:"renderer_ms"`
}

// OverrideConfig defines the grace period duration
type OverrideConfig struct {
	DurationMs int `mapstructure:"duration_ms"`
}

// BridgeConfig defines the extension bridge listener
type BridgeConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Timeout returns the per-site daily budget threshold.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ControllerTick returns the controller heartbeat interval.
func (c *Config) ControllerTick() time.Duration {
	return time.Duration(c.Ticks.ControllerMs) * time.Millisecond
}

// RendererTick returns the renderer self-check interval handed to
// renderers at attach time.
func (c *Config) RendererTick() time.Duration {
	return time.Duration(c.Ticks.RendererMs) * time.Millisecond
}

// OverrideDuration returns the grace period length.
func (c *Config) OverrideDuration() time.Duration {
	return time.Duration(c.Override.DurationMs) * time.Millisecond
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error: defaults plus environment
// variables apply. A malformed file or invalid values are errors; the
// caller falls back to Default().
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("DIMTAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file. A file that exists but cannot be parsed is
	// reported; a missing file means defaults-only operation.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configPath); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the built-in configuration used when the config
// provider is unavailable.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		// Defaults are static and always unmarshal.
		panic(fmt.Sprintf("built-in defaults invalid: %v", err))
	}
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("tracked_sites", []string{
		"youtube.com",
		"twitter.com",
		"reddit.com",
		"tiktok.com",
	})
	v.SetDefault("timeout_seconds", 1800)

	// Blur defaults
	v.SetDefault("blur.intensity_min", 2)
	v.SetDefault("blur.intensity_max", 8)
	v.SetDefault("blur.probability", 0.85)

	// Tick defaults: ~1s controller re-evaluation, ~0.5s renderer self-check
	v.SetDefault("ticks.controller_ms", 1000)
	v.SetDefault("ticks.renderer_ms", 500)

	// Override defaults: one-shot 5s grace period
	v.SetDefault("override.duration_ms", 5000)

	// Bridge defaults
	v.SetDefault("bridge.listen_addr", "127.0.0.1:8377")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9377")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("debug_logging", false)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid timeout_seconds: %d", cfg.TimeoutSeconds)
	}
	if cfg.Blur.IntensityMin < 0 || cfg.Blur.IntensityMax < cfg.Blur.IntensityMin {
		return fmt.Errorf("invalid blur intensity range: [%d, %d]",
			cfg.Blur.IntensityMin, cfg.Blur.IntensityMax)
	}
	if cfg.Blur.Probability < 0 || cfg.Blur.Probability > 1 {
		return fmt.Errorf("invalid blur probability: %f", cfg.Blur.Probability)
	}
	if cfg.Ticks.ControllerMs <= 0 {
		return fmt.Errorf("invalid controller tick: %dms", cfg.Ticks.ControllerMs)
	}
	if cfg.Ticks.RendererMs <= 0 {
		return fmt.Errorf("invalid renderer tick: %dms", cfg.Ticks.RendererMs)
	}
	if cfg.Override.DurationMs < 0 {
		return fmt.Errorf("invalid override duration: %dms", cfg.Override.DurationMs)
	}
	if cfg.Bridge.ListenAddr == "" {
		return fmt.Errorf("bridge.listen_addr must not be empty")
	}
	return nil
}
