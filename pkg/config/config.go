package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig holds the AgentCore runtime endpoint configuration
type AgentConfig struct {
	ARN       string `mapstructure:"arn"`
	Region    string `mapstructure:"region"`
	Qualifier string `mapstructure:"qualifier"`
	// Endpoint overrides the computed AgentCore URL (tests, local proxies)
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"`
}

// AuthConfig holds credential configuration
type AuthConfig struct {
	// BearerTokenEnv names the environment variable holding the bearer token.
	// The token itself never lives in the settings file.
	BearerTokenEnv string `mapstructure:"bearer_token_env"`
}

// SessionConfig holds session attribution configuration
type SessionConfig struct {
	ActorID  string `mapstructure:"actor_id"`
	Greeting string `mapstructure:"greeting"`
}

// HistoryConfig holds session persistence configuration
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig holds local proxy server configuration
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// Config represents the application configuration
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Session SessionConfig `mapstructure:"session"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Global config instance
var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./.agentchat")
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.AutomaticEnv()

	// Missing config file is fine; defaults and env cover everything
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(cfgFile); statErr == nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(cfg); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	return cfg, nil
}

// Set replaces the global config instance (tests)
func Set(c *Config) {
	cfg = c
}

// BearerToken resolves the bearer token from the configured environment variable
func (c *Config) BearerToken() string {
	if c.Auth.BearerTokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Auth.BearerTokenEnv)
}

// BuildSettingsPath returns a path inside the settings directory
func BuildSettingsPath(filename string) string {
	return filepath.Join("./.agentchat", filename)
}

func processDurations(c *Config) error {
	if c.Agent.TimeoutStr != "" {
		d, err := time.ParseDuration(c.Agent.TimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid agent.timeout %q: %w", c.Agent.TimeoutStr, err)
		}
		c.Agent.Timeout = d
	}
	return nil
}
