// Package config loads Faultline process configuration with Viper.
//
// Precedence (lowest to highest): defaults < config file < FAULTLINE_*
// environment variables. The config file is faultline.toml, found either
// in the working directory (searching upward) or in ~/.faultline/.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/oxbowlabs/faultline/errors"
)

// Config is the process configuration consumed by the tracker, store, and
// CLI.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	Patterns    PatternsConfig    `mapstructure:"patterns"`
	Log         LogConfig         `mapstructure:"log"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AggregationConfig tunes the rolling aggregation flush.
type AggregationConfig struct {
	FlushIntervalSeconds int `mapstructure:"flush_interval_seconds"`
}

// CaptureConfig tunes record building and classification.
type CaptureConfig struct {
	MaxStackFrames    int  `mapstructure:"max_stack_frames"`
	DualMatchSeverity bool `mapstructure:"dual_match_severity"`
}

// PatternsConfig locates the operator-defined patterns file. Empty means
// built-in patterns only.
type PatternsConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig selects the log output format.
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// FlushInterval returns the aggregation flush interval as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Aggregation.FlushIntervalSeconds) * time.Second
}

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "faultline.db")

	// Flush hourly by default
	v.SetDefault("aggregation.flush_interval_seconds", 3600)

	v.SetDefault("capture.max_stack_frames", 50)
	v.SetDefault("capture.dual_match_severity", false)

	v.SetDefault("patterns.file", "")
	v.SetDefault("log.json", false)
}

// Load reads the configuration, caching the result for subsequent calls.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// GetViper returns the Viper instance for advanced configuration access.
func GetViper() *viper.Viper {
	return initViper()
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Environment variable binding: FAULTLINE_DATABASE_PATH and friends
	v.SetEnvPrefix("FAULTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		// Missing or unreadable files fall back to defaults + env
		_ = v.ReadInConfig()
	}

	viperInstance = v
	return v
}

// findConfigFile searches for faultline.toml by walking up from the
// working directory, then falls back to ~/.faultline/faultline.toml.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, "faultline.toml")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(homeDir, ".faultline", "faultline.toml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
