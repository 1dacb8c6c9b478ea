// Package config loads service configuration from an optional YAML file
// with environment-variable fallbacks for every setting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the registrar service.
type Config struct {
	HTTP struct {
		Port string `yaml:"port"`
	} `yaml:"http"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Database struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	Payments struct {
		// WebhookSecret signs inbound payment events (HMAC-SHA256).
		WebhookSecret string `yaml:"webhook_secret"`
		APIBaseURL    string `yaml:"api_base_url"`
		APIKey        string `yaml:"api_key"`
	} `yaml:"payments"`

	Publish struct {
		APIBaseURL   string `yaml:"api_base_url"`
		APIKey       string `yaml:"api_key"`
		CollectionID string `yaml:"collection_id"`
		// PurchaseCollectionID holds the purchase listings; falls back to
		// CollectionID when unset.
		PurchaseCollectionID string `yaml:"purchase_collection_id"`
	} `yaml:"publish"`

	Notify struct {
		EndpointURL string `yaml:"endpoint_url"`
	} `yaml:"notify"`

	Jobs struct {
		ReconcileInterval time.Duration `yaml:"reconcile_interval"`
		WaitlistInterval  time.Duration `yaml:"waitlist_interval"`
		CycleTimeout      time.Duration `yaml:"cycle_timeout"`
	} `yaml:"jobs"`
}

// Load reads the YAML file at path (if path is non-empty and the file
// exists) and fills every unset field from environment variables or
// defaults. A missing file with an empty path is not an error; local
// development runs on env vars alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults alone.
func FromEnv() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	setDefault(&c.HTTP.Port, "PORT", "8080")
	setDefault(&c.Log.Level, "LOG_LEVEL", "info")
	if !c.Log.JSON {
		c.Log.JSON = getEnvBool("LOG_JSON", false)
	}

	setDefault(&c.Database.Host, "DB_HOST", "localhost")
	setDefault(&c.Database.Port, "DB_PORT", "5432")
	setDefault(&c.Database.User, "DB_USER", "postgres")
	setDefault(&c.Database.Password, "DB_PASSWORD", "postgres")
	setDefault(&c.Database.Name, "DB_NAME", "registrar")
	setDefault(&c.Database.SSLMode, "DB_SSLMODE", "disable")

	setDefault(&c.Payments.WebhookSecret, "PAYMENT_WEBHOOK_SECRET", "")
	setDefault(&c.Payments.APIBaseURL, "PAYMENT_API_BASE_URL", "")
	setDefault(&c.Payments.APIKey, "PAYMENT_API_KEY", "")

	setDefault(&c.Publish.APIBaseURL, "PUBLISH_API_BASE_URL", "")
	setDefault(&c.Publish.APIKey, "PUBLISH_API_KEY", "")
	setDefault(&c.Publish.CollectionID, "PUBLISH_COLLECTION_ID", "")
	setDefault(&c.Publish.PurchaseCollectionID, "PUBLISH_PURCHASE_COLLECTION_ID", "")
	if c.Publish.PurchaseCollectionID == "" {
		c.Publish.PurchaseCollectionID = c.Publish.CollectionID
	}

	setDefault(&c.Notify.EndpointURL, "NOTIFY_ENDPOINT_URL", "")

	if c.Jobs.ReconcileInterval <= 0 {
		c.Jobs.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute)
	}
	if c.Jobs.WaitlistInterval <= 0 {
		c.Jobs.WaitlistInterval = getEnvDuration("WAITLIST_INTERVAL", 10*time.Minute)
	}
	if c.Jobs.CycleTimeout <= 0 {
		c.Jobs.CycleTimeout = getEnvDuration("JOB_CYCLE_TIMEOUT", 2*time.Minute)
	}
}

// DSN builds a libpq-compatible connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode,
	)
}

func setDefault(field *string, envKey, fallback string) {
	if *field != "" {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*field = v
		return
	}
	*field = fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
