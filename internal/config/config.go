// Package config loads the server and edge-agent configuration from the
// environment (plus an optional .env file). Every threshold the analysis
// pipeline uses is supplied here; core logic hardcodes nothing.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig configures the remote huddle service.
type ServerConfig struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// IntakeAPIKeys holds "practice-id:key" entries for agent auth.
	IntakeAPIKeys []string `mapstructure:"INTAKE_API_KEYS"`

	// Text-generation capability.
	TextgenURL        string `mapstructure:"TEXTGEN_URL"`
	TextgenAPIKey     string `mapstructure:"TEXTGEN_API_KEY"`
	TextgenTimeoutSec int    `mapstructure:"TEXTGEN_TIMEOUT_SEC"`

	// Risk rule thresholds.
	RiskNoShowThreshold  int     `mapstructure:"RISK_NOSHOW_THRESHOLD"`
	RiskBalanceThreshold float64 `mapstructure:"RISK_BALANCE_THRESHOLD"`

	// Revenue priority thresholds.
	RevenueHighValue   float64 `mapstructure:"REVENUE_HIGH_VALUE"`
	RevenueMediumValue float64 `mapstructure:"REVENUE_MEDIUM_VALUE"`
}

// LoadServer reads the server configuration.
func LoadServer() (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TEXTGEN_TIMEOUT_SEC", 20)
	v.SetDefault("RISK_NOSHOW_THRESHOLD", 3)
	v.SetDefault("RISK_BALANCE_THRESHOLD", 200)
	v.SetDefault("REVENUE_HIGH_VALUE", 800)
	v.SetDefault("REVENUE_MEDIUM_VALUE", 300)

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"INTAKE_API_KEYS", "TEXTGEN_URL", "TEXTGEN_API_KEY", "TEXTGEN_TIMEOUT_SEC",
		"RISK_NOSHOW_THRESHOLD", "RISK_BALANCE_THRESHOLD",
		"REVENUE_HIGH_VALUE", "REVENUE_MEDIUM_VALUE",
	} {
		v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing.
	_ = v.ReadInConfig()

	cfg := &ServerConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal server config: %w", err)
	}

	if cfg.IntakeAPIKeys == nil {
		if keys := v.GetString("INTAKE_API_KEYS"); keys != "" {
			cfg.IntakeAPIKeys = strings.Split(keys, ",")
		}
	}

	return cfg, nil
}

func (c *ServerConfig) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Production
// requires a database and at least one intake credential.
func (c *ServerConfig) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be \"development\" or \"production\", got %q", c.Env)
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if len(c.IntakeAPIKeys) == 0 {
			return fmt.Errorf("INTAKE_API_KEYS is required in production; refusing to run an open intake")
		}
	}
	for _, pair := range c.IntakeAPIKeys {
		if !strings.Contains(pair, ":") {
			return fmt.Errorf("INTAKE_API_KEYS entries must be practice-id:key, got %q", pair)
		}
	}
	if c.RiskNoShowThreshold < 0 || c.RiskBalanceThreshold < 0 {
		return fmt.Errorf("risk thresholds must be non-negative")
	}
	if c.RevenueMediumValue > c.RevenueHighValue {
		return fmt.Errorf("REVENUE_MEDIUM_VALUE must not exceed REVENUE_HIGH_VALUE")
	}
	return nil
}
