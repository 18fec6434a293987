package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/sink"
)

const sample = `
port: 9090
db_path: /tmp/splitkit-test.db
environment: production
analytics:
  ga4:
    measurement_id: G-FILE
    api_secret: file-secret
  rate_limit: 5
metrics:
  signup_conversion: [user_signup, trial_started]
experiments:
  - id: footer_cta
    name: Footer CTA
    kind: cta
    status: running
    traffic_allocation: 50
    target_metric: signup_conversion
    variants:
      - id: control
        weight: 50
        is_control: true
        config:
          button_text: Sign up
      - id: bold
        weight: 50
        config:
          button_text: Get started free
          button_color: orange
funnels:
  - id: onboarding
    name: Onboarding
    steps:
      - name: Signup
        order: 1
        event_name: user_signup
      - name: Analysis
        order: 2
        event_name: analysis_completed
        conditions:
          - property: word_count
            operator: greater_than
            value: 100
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "splitkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "fnv", cfg.Hasher)
	assert.Equal(t, 5.0, cfg.Analytics.RateLimit)
	assert.Equal(t, 10, cfg.Analytics.Burst, "defaults survive partial sections")
	assert.Equal(t, []string{"user_signup", "trial_started"}, cfg.Metrics["signup_conversion"])

	require.Len(t, cfg.Experiments, 1)
	bold, ok := cfg.Experiments[0].Variant("bold")
	require.True(t, ok)
	assert.Equal(t, "orange", bold.Config.(experiment.CTAConfig).ButtonColor)

	require.Len(t, cfg.Funnels, 1)
	assert.Equal(t, "greater_than", cfg.Funnels[0].Steps[1].Conditions[0].Operator)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv("SPLITKIT_PORT", "7070")
	t.Setenv("SPLITKIT_DB_PATH", "/data/env.db")
	t.Setenv("SPLITKIT_GA4_API_SECRET", "env-secret")
	t.Setenv("SPLITKIT_POSTHOG_API_KEY", "phc_env")
	t.Setenv("SPLITKIT_HASHER", "legacy")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "/data/env.db", cfg.DBPath)
	assert.Equal(t, "G-FILE", cfg.Analytics.GA4.MeasurementID)
	assert.Equal(t, "env-secret", cfg.Analytics.GA4.APISecret)
	require.NotNil(t, cfg.Analytics.PostHog)
	assert.Equal(t, "phc_env", cfg.Analytics.PostHog.APIKey)
	assert.IsType(t, experiment.LegacyHasher{}, cfg.HasherImpl())
}

func TestLoad_DefaultPathMayBeMissing(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.IsType(t, experiment.FNVHasher{}, cfg.HasherImpl())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "port: [nope"))
	assert.Error(t, err)

	t.Setenv("SPLITKIT_PORT", "abc")
	_, err = Load(writeConfig(t, "port: 8080"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"port":    func(c *Config) { c.Port = 0 },
		"hasher":  func(c *Config) { c.Hasher = "md5" },
		"burst":   func(c *Config) { c.Analytics.Burst = 0 },
		"ga4":     func(c *Config) { c.Analytics.GA4 = &sink.GA4Config{MeasurementID: "G-1"} },
		"weights": func(c *Config) { c.Experiments = []experiment.Experiment{badWeights()} },
		"status": func(c *Config) {
			exp := badWeights()
			exp.Variants[1].Weight = 50
			exp.Status = "archived"
			c.Experiments = []experiment.Experiment{exp}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func badWeights() experiment.Experiment {
	return experiment.Experiment{
		ID:     "x",
		Status: experiment.StatusRunning,
		Variants: []experiment.Variant{
			{ID: "a", Weight: 50},
			{ID: "b", Weight: 40},
		},
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeConfig(t, "port: 8081\n")
	changes := make(chan *Config, 4)

	w, err := NewWatcher(path, func(c *Config) { changes <- c }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// invalid edits are skipped
	require.NoError(t, os.WriteFile(path, []byte("port: -1\n"), 0o644))
	time.Sleep(500 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("port: 8082\n"), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, 8082, cfg.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}

	cancel()
	require.NoError(t, <-done)
}
