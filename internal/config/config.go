package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/newthinker/crossbt/internal/backtest"
	"github.com/newthinker/crossbt/internal/core"
	"github.com/newthinker/crossbt/internal/storage/archive"
)

// EnvPrefix prefixes environment overrides, e.g. CROSSBT_SERVER_PORT
const EnvPrefix = "CROSSBT"

type Config struct {
	Backtest backtest.Params `mapstructure:"backtest" yaml:"backtest"`
	Data     DataConfig      `mapstructure:"data" yaml:"data"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
	Metrics  MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
}

// DataConfig selects where bars come from
type DataConfig struct {
	Provider    string      `mapstructure:"provider" yaml:"provider"` // "yahoo", "eastmoney", "csv" or "parquet"
	Dir         string      `mapstructure:"dir" yaml:"dir"`           // For csv and parquet
	Concurrency int         `mapstructure:"concurrency" yaml:"concurrency"`
	Cache       CacheConfig `mapstructure:"cache" yaml:"cache"`
}

// CacheConfig configures the bar cache
type CacheConfig struct {
	Type string           `mapstructure:"type" yaml:"type"` // "none", "localfs" or "s3"
	Path string           `mapstructure:"path" yaml:"path"` // For localfs
	S3   archive.S3Config `mapstructure:"s3" yaml:"s3"`
}

// Archive converts the cache settings into an archive.Config
func (c CacheConfig) Archive() archive.Config {
	return archive.Config{Type: c.Type, Path: c.Path, S3: c.S3}
}

type ServerConfig struct {
	Host                   string `mapstructure:"host" yaml:"host"`
	Port                   int    `mapstructure:"port" yaml:"port"`
	APIKey                 string `mapstructure:"api_key" yaml:"api_key"`
	JobTTLHours            int    `mapstructure:"job_ttl_hours" yaml:"job_ttl_hours"`
	MaxJobs                int    `mapstructure:"max_jobs" yaml:"max_jobs"`
	BacktestTimeoutMinutes int    `mapstructure:"backtest_timeout_minutes" yaml:"backtest_timeout_minutes"`
	MaxSymbols             int    `mapstructure:"max_symbols" yaml:"max_symbols"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Load reads configuration layered as defaults, then the file at path (if
// any), then CROSSBT_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Seed with defaults so every key is known to the env lookup
	base, err := yaml.Marshal(Defaults())
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("reading defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("reading config: %w", err))
		}
	}

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.Contains(val, "${") {
			v.Set(key, os.ExpandEnv(val))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backtest: backtest.DefaultParams(),
		Data: DataConfig{
			Provider:    "yahoo",
			Concurrency: 4,
			Cache: CacheConfig{
				Type: "none",
			},
		},
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			JobTTLHours:            1,
			MaxJobs:                100,
			BacktestTimeoutMinutes: 5,
			MaxSymbols:             50,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxJobs < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_jobs must be positive, got %d", c.Server.MaxJobs))
	}

	if err := c.Backtest.Validate(); err != nil {
		return err
	}

	// Data validation
	switch c.Data.Provider {
	case "yahoo", "eastmoney":
	case "csv", "parquet":
		if c.Data.Dir == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.dir required when provider is %s", c.Data.Provider))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown data provider %q", c.Data.Provider))
	}

	switch c.Data.Cache.Type {
	case "", "none":
	case "localfs":
		if c.Data.Cache.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.cache.path required when cache type is localfs"))
		}
	case "s3":
		if c.Data.Cache.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.cache.s3.bucket required when cache type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cache type %q", c.Data.Cache.Type))
	}

	return nil
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	if c.Server.APIKey != "" {
		c.Server.APIKey = "******"
	}
	if c.Data.Cache.S3.SecretKey != "" {
		c.Data.Cache.S3.SecretKey = "******"
	}
	return c
}
