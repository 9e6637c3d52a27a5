// Package config manages operator preferences for the slipway CLI: the
// default manifest path, default environment, run timeout, and logging
// options. Preferences load from ~/.slipway/config.yaml and SLIPWAY_*
// environment variables, with the environment taking precedence. The
// deployment manifest itself is a separate document owned by
// internal/manifest and is never read here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/slipway/slipway/internal/constants"
)

// Config holds the operator-level settings. Every field has a flag
// counterpart on the CLI; the file and environment only supply defaults.
type Config struct {
	// Manifest is the deployment manifest path used when --manifest is not
	// given. Relative paths resolve against the working directory.
	Manifest string `mapstructure:"manifest" yaml:"manifest"`

	// Environment is the environment applied when the command line names
	// none.
	Environment string `mapstructure:"environment" yaml:"environment"`

	// Timeout bounds one whole reconcile run.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"omitempty,min=0"`

	// LogLevel is the log level for the logger. Defaults to "INFO".
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// LogFormat forces the log handler: "text" or "json". Empty picks by
	// terminal detection.
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=text json"`

	// NoColor disables colored output regardless of terminal detection.
	NoColor bool `mapstructure:"no_color" yaml:"no_color"`
}

var validate = validator.New()

// Load reads the configuration. A missing config file is fine (defaults and
// environment variables apply); a present but malformed one is an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := loadConfigFile(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to the operator's home directory.
// Overwrites the existing config file if it exists.
func Save(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("error locating home directory: %w", err)
	}

	configDir := constants.ConfigDirPath(home)
	if err = os.MkdirAll(configDir, constants.ConfigDirPermissions); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configFilePath := filepath.Join(configDir, constants.ConfigFileName)

	v := viper.New()
	v.Set("manifest", cfg.Manifest)
	v.Set("environment", cfg.Environment)
	v.Set("timeout", cfg.Timeout.String())
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("no_color", cfg.NoColor)

	if err = v.WriteConfigAs(configFilePath); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	// The file holds nothing secret today, but keep it private anyway.
	if err = os.Chmod(configFilePath, constants.ConfigFilePermissions); err != nil {
		return fmt.Errorf("error setting config file permissions: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the tool configuration file.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error locating home directory: %w", err)
	}
	return constants.ConfigFilePath(home), nil
}

// GetLogLevel returns the slog.Level from the string configuration.
// Defaults to INFO if the level string is invalid.
func (c *Config) GetLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("manifest", constants.DefaultManifestName)
	v.SetDefault("timeout", constants.DefaultApplyTimeout)
	v.SetDefault("log_level", "INFO")
}

func loadConfigFile(v *viper.Viper) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("error locating home directory: %w", err)
	}

	configFile := constants.ConfigFilePath(home)
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading config file %s: %w", configFile, err)
	}
	return nil
}

func bindEnvVars(v *viper.Viper) {
	// Bind each setting explicitly so SLIPWAY_X works without a prior
	// SetDefault for X.
	envVars := []string{
		"ENVIRONMENT",
		"LOG_FORMAT",
		"LOG_LEVEL",
		"MANIFEST",
		"NO_COLOR",
		"TIMEOUT",
	}

	for _, envVar := range envVars {
		configKey := strings.ToLower(envVar)
		_ = v.BindEnv(configKey, constants.EnvPrefix+"_"+envVar)
	}
}
