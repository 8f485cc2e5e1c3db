package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration settings for the application
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Oracle      OracleConfig   `mapstructure:"oracle"`
	Health      HealthConfig   `mapstructure:"health"`
	Database    DatabaseConfig `mapstructure:"database"`
	Providers   []ProviderDef  `mapstructure:"providers"`
}

// OracleConfig holds the consensus engine settings, including the
// process-wide default selection criteria
type OracleConfig struct {
	MinProviders       int           `mapstructure:"min_providers"`
	MaxProviders       int           `mapstructure:"max_providers"`
	OutlierThreshold   float64       `mapstructure:"outlier_threshold"`
	ConsensusThreshold float64       `mapstructure:"consensus_threshold"`
	WeightingStrategy  string        `mapstructure:"weighting_strategy"`
	AggregationMethod  string        `mapstructure:"aggregation_method"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	EventBuffer        int           `mapstructure:"event_buffer"`
}

// HealthConfig holds the provider health-check settings
type HealthConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig holds round-history database settings. An empty URL
// disables persistence.
type DatabaseConfig struct {
	URL      string        `mapstructure:"url"`
	MaxConns int           `mapstructure:"max_conns"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ProviderDef declares one provider in static configuration
type ProviderDef struct {
	Name        string   `mapstructure:"name"`
	Kind        string   `mapstructure:"kind"`
	DataTypes   []string `mapstructure:"data_types"`
	Reliability float64  `mapstructure:"reliability"`
}

// Load reads the configuration file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, will rely on defaults and env vars
	}

	v.SetEnvPrefix("ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Engine defaults
	v.SetDefault("oracle.min_providers", 1)
	v.SetDefault("oracle.max_providers", 5)
	v.SetDefault("oracle.outlier_threshold", 0.2)
	v.SetDefault("oracle.consensus_threshold", 0.6)
	v.SetDefault("oracle.weighting_strategy", "dynamic")
	v.SetDefault("oracle.aggregation_method", "weightedMedian")
	v.SetDefault("oracle.call_timeout", "10s")
	v.SetDefault("oracle.event_buffer", 64)

	// Health check defaults
	v.SetDefault("health.schedule", "@every 5m")
	v.SetDefault("health.timeout", "5s")

	// Database defaults
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.timeout", "30s")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateOracle(); err != nil {
		return fmt.Errorf("oracle config: %w", err)
	}
	if err := c.validateHealth(); err != nil {
		return fmt.Errorf("health config: %w", err)
	}
	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.validateProviders(); err != nil {
		return fmt.Errorf("providers config: %w", err)
	}
	return nil
}

func (c *Config) validateOracle() error {
	if c.Oracle.MinProviders < 1 {
		return fmt.Errorf("min_providers must be positive")
	}
	if c.Oracle.MaxProviders < c.Oracle.MinProviders {
		return fmt.Errorf("max_providers (%d) cannot be less than min_providers (%d)",
			c.Oracle.MaxProviders, c.Oracle.MinProviders)
	}
	if c.Oracle.OutlierThreshold < 0 {
		return fmt.Errorf("outlier_threshold cannot be negative")
	}
	if c.Oracle.ConsensusThreshold < 0 || c.Oracle.ConsensusThreshold > 1 {
		return fmt.Errorf("consensus_threshold must be between 0 and 1")
	}
	if c.Oracle.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	if c.Oracle.EventBuffer < 0 {
		return fmt.Errorf("event_buffer cannot be negative")
	}
	return nil
}

func (c *Config) validateHealth() error {
	if c.Health.Schedule == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	if c.Health.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	// Empty URL means persistence is disabled
	if c.Database.URL == "" {
		return nil
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("max_conns must be positive")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func (c *Config) validateProviders() error {
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider name cannot be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = true
		if p.Reliability < 0 || p.Reliability > 100 {
			return fmt.Errorf("provider %s: reliability must be between 0 and 100", p.Name)
		}
		if len(p.DataTypes) == 0 {
			return fmt.Errorf("provider %s: data_types cannot be empty", p.Name)
		}
	}
	return nil
}

// GetLogLevel returns a zap log level based on the configured string
func (c *Config) GetLogLevel() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "info":
		level.SetLevel(zap.InfoLevel)
	case "warn":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

// IsDevelopment returns true if the environment is set to development
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == "development"
}
