package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Input    InputConfig    `mapstructure:"input"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// InputConfig locates the contact log
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// AnalysisConfig holds the goodness-of-fit thresholds
type AnalysisConfig struct {
	MinObservations int    `mapstructure:"min_observations"`
	MinSampleSize   int    `mapstructure:"min_sample_size"`
	Workers         int    `mapstructure:"workers"`
	CriticalTable   string `mapstructure:"critical_table"` // empty = generate
	MaxDOF          int    `mapstructure:"max_dof"`
}

// OutputConfig holds report destinations. Empty paths disable the report.
type OutputConfig struct {
	ProfilesCSV string `mapstructure:"profiles_csv"`
	ResultsCSV  string `mapstructure:"results_csv"`
}

// StorageConfig holds run persistence configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// MetricsConfig holds the Prometheus textfile destination. Empty disables it.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// With an empty path only defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. CONTACTFIT_ANALYSIS_WORKERS
	v.SetEnvPrefix("CONTACTFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("input.path", "input/contacts.txt")

	// Analysis defaults
	v.SetDefault("analysis.min_observations", 3)
	v.SetDefault("analysis.min_sample_size", 250)
	v.SetDefault("analysis.workers", 1)
	v.SetDefault("analysis.critical_table", "")
	v.SetDefault("analysis.max_dof", 100)

	// Output defaults
	v.SetDefault("output.profiles_csv", "output/output.csv")
	v.SetDefault("output.results_csv", "output/results.csv")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.db_path", "./data/contactfit.db")

	v.SetDefault("metrics.textfile_path", "")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}

	// Validate Analysis config
	if c.Analysis.MinObservations < 0 {
		return fmt.Errorf("analysis.min_observations must be non-negative")
	}
	if c.Analysis.MinSampleSize < 0 {
		return fmt.Errorf("analysis.min_sample_size must be non-negative")
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}
	if c.Analysis.CriticalTable == "" && c.Analysis.MaxDOF < 1 {
		return fmt.Errorf("analysis.max_dof must be at least 1 when no critical_table is given")
	}

	// Validate Storage config
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 1 {
			return fmt.Errorf("telegram.max_retries must be at least 1")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
