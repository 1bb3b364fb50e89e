package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig configures the on-premises edge agent. The agent never
// persists configuration inside patient-data directories; everything
// comes from the environment of the service account it runs under.
type AgentConfig struct {
	PracticeID   string `mapstructure:"PRACTICE_ID"`
	PracticeSalt string `mapstructure:"PRACTICE_SALT"`

	// PMS connectivity. PMSType selects the extractor.
	PMSType       string `mapstructure:"PMS_TYPE"`
	CSVPath       string `mapstructure:"CSV_PATH"`
	OpenDentalDSN string `mapstructure:"OPENDENTAL_DSN"`
	EaglesoftURL  string `mapstructure:"EAGLESOFT_URL"`

	// Delivery target.
	IntakeURL    string `mapstructure:"INTAKE_URL"`
	IntakeAPIKey string `mapstructure:"INTAKE_API_KEY"`

	// Sanitization.
	AgeBucketYears int `mapstructure:"AGE_BUCKET_YEARS"`

	// Delivery retry bounds.
	DeliveryMaxAttempts   int `mapstructure:"DELIVERY_MAX_ATTEMPTS"`
	DeliveryBackoffFloorS int `mapstructure:"DELIVERY_BACKOFF_FLOOR_SEC"`
	DeliveryBackoffCapS   int `mapstructure:"DELIVERY_BACKOFF_CAP_SEC"`
	DeliveryTimeoutS      int `mapstructure:"DELIVERY_TIMEOUT_SEC"`

	// Daily extraction schedule (local practice time).
	ExtractionHour   int `mapstructure:"EXTRACTION_HOUR"`
	ExtractionMinute int `mapstructure:"EXTRACTION_MINUTE"`
}

// LoadAgent reads the agent configuration.
func LoadAgent() (*AgentConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PMS_TYPE", "csv")
	v.SetDefault("AGE_BUCKET_YEARS", 10)
	v.SetDefault("DELIVERY_MAX_ATTEMPTS", 3)
	v.SetDefault("DELIVERY_BACKOFF_FLOOR_SEC", 4)
	v.SetDefault("DELIVERY_BACKOFF_CAP_SEC", 60)
	v.SetDefault("DELIVERY_TIMEOUT_SEC", 30)
	v.SetDefault("EXTRACTION_HOUR", 6)
	v.SetDefault("EXTRACTION_MINUTE", 30)

	for _, key := range []string{
		"PRACTICE_ID", "PRACTICE_SALT",
		"PMS_TYPE", "CSV_PATH", "OPENDENTAL_DSN", "EAGLESOFT_URL",
		"INTAKE_URL", "INTAKE_API_KEY", "AGE_BUCKET_YEARS",
		"DELIVERY_MAX_ATTEMPTS", "DELIVERY_BACKOFF_FLOOR_SEC",
		"DELIVERY_BACKOFF_CAP_SEC", "DELIVERY_TIMEOUT_SEC",
		"EXTRACTION_HOUR", "EXTRACTION_MINUTE",
	} {
		v.BindEnv(key)
	}

	_ = v.ReadInConfig()

	cfg := &AgentConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	return cfg, nil
}

// Validate checks the agent can actually extract and deliver.
func (c *AgentConfig) Validate() error {
	if c.PracticeID == "" {
		return fmt.Errorf("PRACTICE_ID is required")
	}
	if c.PracticeSalt == "" {
		return fmt.Errorf("PRACTICE_SALT is required; tokens must be practice-scoped")
	}
	switch c.PMSType {
	case "csv":
		if c.CSVPath == "" {
			return fmt.Errorf("CSV_PATH is required when PMS_TYPE=csv")
		}
	case "opendental":
		if c.OpenDentalDSN == "" {
			return fmt.Errorf("OPENDENTAL_DSN is required when PMS_TYPE=opendental")
		}
	case "eaglesoft":
		if c.EaglesoftURL == "" {
			return fmt.Errorf("EAGLESOFT_URL is required when PMS_TYPE=eaglesoft")
		}
	default:
		return fmt.Errorf("unknown PMS_TYPE %q", c.PMSType)
	}
	if c.IntakeURL == "" {
		return fmt.Errorf("INTAKE_URL is required")
	}
	if c.IntakeAPIKey == "" {
		return fmt.Errorf("INTAKE_API_KEY is required")
	}
	if c.AgeBucketYears <= 0 {
		return fmt.Errorf("AGE_BUCKET_YEARS must be positive")
	}
	if c.DeliveryMaxAttempts < 1 {
		return fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be at least 1")
	}
	if c.DeliveryBackoffFloorS > c.DeliveryBackoffCapS {
		return fmt.Errorf("DELIVERY_BACKOFF_FLOOR_SEC must not exceed DELIVERY_BACKOFF_CAP_SEC")
	}
	if c.ExtractionHour < 0 || c.ExtractionHour > 23 {
		return fmt.Errorf("EXTRACTION_HOUR must be 0-23")
	}
	if c.ExtractionMinute < 0 || c.ExtractionMinute > 59 {
		return fmt.Errorf("EXTRACTION_MINUTE must be 0-59")
	}
	return nil
}

// BackoffFloor returns the configured retry floor as a duration.
func (c *AgentConfig) BackoffFloor() time.Duration {
	return time.Duration(c.DeliveryBackoffFloorS) * time.Second
}

// BackoffCap returns the configured retry cap as a duration.
func (c *AgentConfig) BackoffCap() time.Duration {
	return time.Duration(c.DeliveryBackoffCapS) * time.Second
}

// DeliveryTimeout returns the per-attempt request timeout.
func (c *AgentConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutS) * time.Second
}
