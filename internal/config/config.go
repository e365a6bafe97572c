// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DOCPROMPT_*, plus DATABASE_URL and OPENAI_API_KEY)
//  2. Config file (docprompt.yaml in the working directory, or --config path)
//  3. Default values
//
// Sensitive values (API keys, passwords) are never logged. Validation uses
// sentinel errors so callers can match with errors.Is().
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates no OpenAI API key is configured.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRateLimit indicates the completions rate limit is not positive.
	ErrInvalidRateLimit = errors.New("invalid completions rate limit")
)

// Config holds all service configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr"`

	// OpenAIAPIKey is the platform API key used when a request does not
	// bring its own key.
	OpenAIAPIKey string `mapstructure:"openai_api_key"`

	// SalesEmail is the contact channel included in quota-exceeded messages.
	SalesEmail string `mapstructure:"sales_email"`

	// CompletionsRPS and CompletionsBurst configure per-project admission
	// control on the completions endpoint.
	CompletionsRPS   float64 `mapstructure:"completions_rps"`
	CompletionsBurst int     `mapstructure:"completions_burst"`

	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// LogJSON switches log output to JSON format.
	LogJSON bool `mapstructure:"log_json"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from file (optional), environment, and defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("sales_email", "sales@docprompt.dev")
	v.SetDefault("completions_rps", 10.0)
	v.SetDefault("completions_burst", 20)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "docprompt")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "docprompt")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("DOCPROMPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("docprompt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Well-known environment variables override file settings.
	if key := v.GetString("openai_api_key"); key != "" {
		cfg.OpenAIAPIKey = key
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for structural problems. The API key is
// intentionally not required here: requests may bring their own key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return ErrInvalidPostgresDBName
	}
	if c.CompletionsRPS <= 0 || c.CompletionsBurst <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}
