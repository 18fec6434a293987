// Package config loads splitkit.yaml, applies .env and SPLITKIT_*
// environment overrides and watches the file for changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/funnel"
	"github.com/truecheckia/splitkit/internal/sink"
)

// DefaultPath is read when no config file is named. It may be absent.
const DefaultPath = "splitkit.yaml"

type Config struct {
	Port        int    `yaml:"port"`
	DBPath      string `yaml:"db_path"`
	Environment string `yaml:"environment"`
	// RedisURL moves visitor state to Redis when set.
	RedisURL string `yaml:"redis_url"`
	// Hasher is "fnv" or "legacy".
	Hasher    string    `yaml:"hasher"`
	Analytics Analytics `yaml:"analytics"`
	// Metrics maps experiment target metrics to conversion event names.
	Metrics map[string][]string `yaml:"metrics"`
	// ConversionEvents mark a journey as converted for attribution.
	ConversionEvents []string                `yaml:"conversion_events"`
	Experiments      []experiment.Experiment `yaml:"experiments"`
	Funnels          []funnel.Definition     `yaml:"funnels"`
}

type Analytics struct {
	GA4       *sink.GA4Config     `yaml:"ga4"`
	PostHog   *sink.PostHogConfig `yaml:"posthog"`
	LogEvents bool                `yaml:"log_events"`
	RateLimit float64             `yaml:"rate_limit"`
	Burst     int                 `yaml:"burst"`
	QueueSize int                 `yaml:"queue_size"`
}

func Default() *Config {
	return &Config{
		Port:        8080,
		DBPath:      "./splitkit.db",
		Environment: "development",
		Hasher:      "fnv",
		Analytics: Analytics{
			RateLimit: 20,
			Burst:     10,
			QueueSize: 1024,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path,
// then .env and SPLITKIT_* variables. A missing DefaultPath is not an
// error; a missing explicit path is.
func Load(path string) (*Config, error) {
	// .env is optional; production sets real variables.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SPLITKIT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SPLITKIT_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	setString(&c.DBPath, "SPLITKIT_DB_PATH")
	setString(&c.Environment, "SPLITKIT_ENV")
	setString(&c.RedisURL, "SPLITKIT_REDIS_URL")
	setString(&c.Hasher, "SPLITKIT_HASHER")

	if id := os.Getenv("SPLITKIT_GA4_MEASUREMENT_ID"); id != "" {
		if c.Analytics.GA4 == nil {
			c.Analytics.GA4 = &sink.GA4Config{}
		}
		c.Analytics.GA4.MeasurementID = id
	}
	if c.Analytics.GA4 != nil {
		setString(&c.Analytics.GA4.APISecret, "SPLITKIT_GA4_API_SECRET")
	}
	if key := os.Getenv("SPLITKIT_POSTHOG_API_KEY"); key != "" {
		if c.Analytics.PostHog == nil {
			c.Analytics.PostHog = &sink.PostHogConfig{}
		}
		c.Analytics.PostHog.APIKey = key
	}
	if c.Analytics.PostHog != nil {
		setString(&c.Analytics.PostHog.Host, "SPLITKIT_POSTHOG_HOST")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks values a running service cannot work around.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.Hasher != "fnv" && c.Hasher != "legacy" {
		return fmt.Errorf("unknown hasher %q (want fnv or legacy)", c.Hasher)
	}
	if c.Analytics.RateLimit > 0 && c.Analytics.Burst < 1 {
		return fmt.Errorf("analytics.burst must be at least 1 when rate_limit is set, got %d", c.Analytics.Burst)
	}
	if ga4 := c.Analytics.GA4; ga4 != nil && (ga4.MeasurementID == "" || ga4.APISecret == "") {
		return errors.New("analytics.ga4 needs measurement_id and api_secret")
	}
	if ph := c.Analytics.PostHog; ph != nil && ph.APIKey == "" {
		return errors.New("analytics.posthog needs api_key")
	}

	for i := range c.Experiments {
		if err := c.Experiments[i].Validate(); err != nil {
			return fmt.Errorf("experiment %d: %w", i, err)
		}
	}
	for i, f := range c.Funnels {
		if f.ID == "" || len(f.Steps) == 0 {
			return fmt.Errorf("funnel %d: id and steps are required", i)
		}
	}
	return nil
}

// HasherImpl returns the bucketing hasher named by Hasher.
func (c *Config) HasherImpl() experiment.Hasher {
	if c.Hasher == "legacy" {
		return experiment.LegacyHasher{}
	}
	return experiment.FNVHasher{}
}
