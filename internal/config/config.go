// Package config provides configuration for the farmer assistant service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Eviction names a session eviction policy.
type Eviction string

const (
	EvictionNone Eviction = "none"
	EvictionTTL  Eviction = "ttl"
	EvictionLRU  Eviction = "lru"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabasePath string

	// Oracle (LLM) settings
	OracleURL     string
	OracleAPIKey  string
	OracleModel   string
	OracleTimeout time.Duration

	// Tool execution
	ToolTimeout   time.Duration
	ParallelTools bool

	// Session eviction
	SessionEviction Eviction
	SessionTTL      time.Duration
	SessionMax      int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http_port", 8080)
	v.SetDefault("database_path", "kisansathi.db")
	v.SetDefault("oracle_url", "http://localhost:4000")
	v.SetDefault("oracle_api_key", "")
	v.SetDefault("oracle_model", "gemini-2.5-flash")
	v.SetDefault("oracle_timeout_ms", 120000)
	v.SetDefault("tool_timeout_ms", 30000)
	v.SetDefault("tools_parallel", false)
	v.SetDefault("session_eviction", "none")
	v.SetDefault("session_ttl_ms", 3600000)
	v.SetDefault("session_max", 10000)
	v.SetDefault("log_level", "info")

	cfg := &Config{
		HTTPPort:        v.GetInt("http_port"),
		DatabasePath:    v.GetString("database_path"),
		OracleURL:       v.GetString("oracle_url"),
		OracleAPIKey:    v.GetString("oracle_api_key"),
		OracleModel:     v.GetString("oracle_model"),
		OracleTimeout:   time.Duration(v.GetInt("oracle_timeout_ms")) * time.Millisecond,
		ToolTimeout:     time.Duration(v.GetInt("tool_timeout_ms")) * time.Millisecond,
		ParallelTools:   v.GetBool("tools_parallel"),
		SessionEviction: Eviction(v.GetString("session_eviction")),
		SessionTTL:      time.Duration(v.GetInt("session_ttl_ms")) * time.Millisecond,
		SessionMax:      v.GetInt("session_max"),
		LogLevel:        v.GetString("log_level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionEviction {
	case EvictionNone, EvictionTTL, EvictionLRU:
	default:
		return fmt.Errorf("invalid session_eviction %q (want none, ttl or lru)", c.SessionEviction)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool_timeout_ms must be positive")
	}
	return nil
}
