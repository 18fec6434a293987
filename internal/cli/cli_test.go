package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecheckia/splitkit/internal/config"
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/sink"
)

// env points the CLI at a fresh config file and database.
type env struct {
	dir    string
	config string
	db     string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:    dir,
		config: filepath.Join(dir, "splitkit.yaml"),
		db:     filepath.Join(dir, "splitkit.db"),
	}
	require.NoError(t, os.WriteFile(e.config, []byte("port: 9090\nenvironment: development\n"), 0o644))
	return e
}

// run executes the root command and returns everything it printed.
func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := rootCmd.Execute()
	resetFlags(rootCmd)
	return out.String(), err
}

// resetFlags restores flag defaults since the command tree is shared
// between runs.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestList_SeedsCatalog(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "list")
	for _, id := range []string{"hero_headline", "cta_button", "pricing_display", "signup_form", "social_proof"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "RUNNING")
}

func TestCreateStatusWinner(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "create", "hero_v2", "--kind", "headline", "--variants", "control:Detect AI text,bold:Catch every AI word", "--status", "running")
	assert.Contains(t, out, "Created experiment 'hero_v2'")
	assert.Contains(t, out, "control: 50%")
	assert.Contains(t, out, "bold: 50%")

	_, err := e.run(t, "create", "hero_v2", "--variants", "a,b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out = e.mustRun(t, "status", "hero_v2", "paused")
	assert.Contains(t, out, "is now paused")

	_, err = e.run(t, "winner", "hero_v2", "--variant", "bold")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")

	e.mustRun(t, "status", "hero_v2", "running")

	_, err = e.run(t, "winner", "hero_v2", "--variant", "nope")
	require.Error(t, err)

	out = e.mustRun(t, "winner", "hero_v2", "--variant", "bold")
	assert.Contains(t, out, "Declared winner")

	out = e.mustRun(t, "results", "hero_v2")
	assert.Contains(t, out, "WINNER: bold")
	assert.Contains(t, out, "STATUS: completed")
}

func TestCreate_FromFile(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "experiments.yaml")
	body := `- id: trial_banner
  name: Trial banner
  kind: cta
  status: draft
  traffic_allocation: 50
  target_metric: trial_started
  variants:
    - id: control
      weight: 50
      is_control: true
      config: {button_text: Start free}
    - id: short
      weight: 50
      config: {button_text: Try it}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	out := e.mustRun(t, "create", "--file", path)
	assert.Contains(t, out, "Created experiment 'trial_banner' (cta, draft)")

	out = e.mustRun(t, "list")
	assert.Contains(t, out, "trial_banner")
	assert.Contains(t, out, "DRAFT")
}

func TestStatus_Invalid(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "status", "hero_headline", "archived")
	assert.Error(t, err)

	_, err = e.run(t, "status", "missing", "paused")
	assert.Error(t, err)
}

func TestAssign(t *testing.T) {
	e := newEnv(t)

	first := e.mustRun(t, "assign", "hero_headline", "--session", "3f2a9c")
	assert.Contains(t, first, "Variant: ")
	assert.Contains(t, first, `"headline"`)

	second := e.mustRun(t, "assign", "hero_headline", "--session", "3f2a9c")
	assert.Equal(t, first, second)

	_, err := e.run(t, "assign", "missing", "--session", "3f2a9c")
	assert.Error(t, err)
}

func TestSignificance(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "significance", "--control", "100/2000", "--variant", "130/2000")
	assert.Contains(t, out, "Control rate:  5.00%")
	assert.Contains(t, out, "Variant rate:  6.50%")
	assert.Contains(t, out, "Uplift:        +30.00%")
	assert.Contains(t, out, "significant at 95%")

	_, err := e.run(t, "significance", "--control", "10/0", "--variant", "1/10")
	assert.Error(t, err)

	_, err = e.run(t, "significance", "--control", "20/10", "--variant", "1/10")
	assert.Error(t, err)

	_, err = e.run(t, "significance", "--control", "ten", "--variant", "1/10")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "export", "hero_headline", "--format", "csv")
	assert.Equal(t, "timestamp,variant,metric,value,session_id\n", out)

	out = e.mustRun(t, "export", "hero_headline", "--format", "json")
	assert.Contains(t, out, `"results": []`)

	_, err := e.run(t, "export", "hero_headline", "--format", "xml")
	assert.Error(t, err)

	_, err = e.run(t, "export", "missing", "--format", "csv")
	assert.Error(t, err)
}

const journeysJSON = `[
  {
    "session_id": "s1",
    "attribution": {"source": "google", "medium": "cpc", "campaign": "launch", "captured_at": "2026-03-02T10:00:00Z"},
    "events": [
      {"name": "page_view", "timestamp": "2026-03-02T10:00:00Z"},
      {"name": "signup_click", "timestamp": "2026-03-02T10:01:00Z"},
      {"name": "user_signup", "timestamp": "2026-03-02T10:05:00Z", "revenue": 29.9}
    ]
  },
  {
    "session_id": "s2",
    "attribution": {"source": "newsletter", "medium": "email", "captured_at": "2026-03-03T08:00:00Z"},
    "events": [
      {"name": "page_view", "timestamp": "2026-03-03T08:00:00Z"}
    ]
  }
]`

func TestJourneys_FunnelAndAttribution(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "journeys.json")
	require.NoError(t, os.WriteFile(path, []byte(journeysJSON), 0o644))

	out := e.mustRun(t, "journeys", "import", path)
	assert.Contains(t, out, "Imported 2 journeys")

	out = e.mustRun(t, "journeys", "show", "s1")
	assert.Contains(t, out, "SESSION: s1")
	assert.Contains(t, out, "user_signup")

	out = e.mustRun(t, "funnel", "list")
	assert.Contains(t, out, "registration")
	assert.Contains(t, out, "subscription")

	out = e.mustRun(t, "funnel", "analyze", "registration", "--from", "2026-03-01", "--to", "2026-03-31")
	assert.Contains(t, out, "FUNNEL: User Registration (registration)")
	assert.Contains(t, out, "USERS: 2")
	assert.Contains(t, out, "Signup Click")

	out = e.mustRun(t, "funnel", "analyze", "registration", "--from", "2026-04-01", "--to", "2026-04-30")
	assert.Contains(t, out, "USERS: 0")

	_, err := e.run(t, "funnel", "analyze", "registration", "--from", "2026-03-31", "--to", "2026-03-01")
	assert.Error(t, err)

	_, err = e.run(t, "funnel", "analyze", "missing")
	assert.Error(t, err)

	out = e.mustRun(t, "funnel", "cohort", "registration", "--by", "source", "--granularity", "week")
	assert.Contains(t, out, "google")
	assert.Contains(t, out, "newsletter")

	out = e.mustRun(t, "funnel", "compare", "registration",
		"--baseline-from", "2026-02-01", "--baseline-to", "2026-02-28",
		"--from", "2026-03-01", "--to", "2026-03-31")
	assert.Contains(t, out, "Landing Visit")
	assert.Contains(t, out, "Overall:")

	out = e.mustRun(t, "attribution", "channels", "--model", "linear")
	assert.Contains(t, out, "MODEL: linear")
	assert.Contains(t, out, "Paid Search")
	assert.Contains(t, out, "launch")
	assert.NotContains(t, out, "Email")

	out = e.mustRun(t, "attribution", "channels", "--model", "all")
	assert.Contains(t, out, "MODEL: first_touch")
	assert.Contains(t, out, "MODEL: position_based")

	_, err = e.run(t, "attribution", "channels", "--model", "u_shaped")
	assert.Error(t, err)

	out = e.mustRun(t, "attribution", "paths")
	assert.Contains(t, out, "Paid Search")
}

func TestSnippet(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "snippet", "hero_headline", "--framework", "react", "--server-url", "https://ab.truecheckia.com")
	assert.Contains(t, out, "useHeroHeadline.ts")
	assert.Contains(t, out, "https://ab.truecheckia.com")

	_, err := e.run(t, "snippet", "missing", "--framework", "react", "--server-url", "https://ab.truecheckia.com")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server running")

	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".splitkit-token"), []byte("ab12cd34\n"), 0o600))
	out := e.mustRun(t, "token")
	assert.Contains(t, out, "http://localhost:9090/dashboard/api/experiments?token=ab12cd34")
}

func TestBuildExperiment(t *testing.T) {
	exp, err := buildExperiment("hero_v3", "", experiment.KindHeadline, "control:A, b:B ,c", 80, "signup_conversion", experiment.StatusDraft)
	require.NoError(t, err)
	require.NoError(t, exp.Validate())

	assert.Equal(t, "hero_v3", exp.Name)
	require.Len(t, exp.Variants, 3)
	assert.Equal(t, []int{34, 33, 33}, []int{exp.Variants[0].Weight, exp.Variants[1].Weight, exp.Variants[2].Weight})
	assert.True(t, exp.Variants[0].IsControl)
	assert.False(t, exp.Variants[1].IsControl)
	assert.Equal(t, experiment.HeadlineConfig{Headline: "B"}, exp.Variants[1].Config)
	assert.Equal(t, "c", exp.Variants[2].Name)

	cta, err := buildExperiment("cta_v2", "CTA", experiment.KindCTA, "control:Start free,go:Go", 100, "cta_click", experiment.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, "Go", cta.Variants[1].Config.(experiment.CTAConfig).ButtonText)

	_, err = buildExperiment("solo", "", experiment.KindHeadline, "only", 100, "m", experiment.StatusRunning)
	assert.Error(t, err)
}

func TestRenderConfig_Loads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "splitkit.yaml")

	data, err := renderConfig(initAnswers{
		Port:        8181,
		DBPath:      filepath.Join(dir, "data.db"),
		Environment: "production",
		Analytics:   "ga4",
		GA4:         sink.GA4Config{MeasurementID: "G-TEST", APISecret: "s3cret"},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("# splitkit configuration\n")))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, loaded.Port)
	assert.Equal(t, "production", loaded.Environment)
	require.NotNil(t, loaded.Analytics.GA4)
	assert.Equal(t, "G-TEST", loaded.Analytics.GA4.MeasurementID)
	assert.Nil(t, loaded.Analytics.PostHog)

	data, err = renderConfig(initAnswers{Port: 8080, DBPath: "x.db", Environment: "development", Analytics: "log"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "log_events: true")
	assert.NotContains(t, string(data), "ga4")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "12,345", formatNumber(12345))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "0%", formatPercent(0))
	assert.Equal(t, "12.50%", formatPercent(0.125))
	assert.Equal(t, "R$ 29.90", formatMoney(29.9))
}
