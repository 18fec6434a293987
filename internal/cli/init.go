package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/truecheckia/splitkit/internal/config"
	"github.com/truecheckia/splitkit/internal/logger"
	"github.com/truecheckia/splitkit/internal/sink"
	"github.com/truecheckia/splitkit/internal/store"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config and seed the database",
	Long: `Ask a few questions, write splitkit.yaml and seed the database with
the built-in experiments.

Example:
  splitkit init
  splitkit init --config ./deploy/splitkit.yaml --force`,
	// The config file does not exist yet, so skip loading it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Default()
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		l, err := logger.New(cfg.Environment, verbose)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

// initAnswers are the choices made during init.
type initAnswers struct {
	Port        int
	DBPath      string
	Environment string
	Analytics   string // none, ga4, posthog or log
	GA4         sink.GA4Config
	PostHog     sink.PostHogConfig
}

type initFile struct {
	Port        int           `yaml:"port"`
	DBPath      string        `yaml:"db_path"`
	Environment string        `yaml:"environment"`
	Analytics   initAnalytics `yaml:"analytics,omitempty"`
}

type initAnalytics struct {
	GA4       *sink.GA4Config     `yaml:"ga4,omitempty"`
	PostHog   *sink.PostHogConfig `yaml:"posthog,omitempty"`
	LogEvents bool                `yaml:"log_events,omitempty"`
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	answers, err := promptAnswers()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return nil
		}
		return err
	}

	data, err := renderConfig(answers)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	cfg.DBPath = answers.DBPath
	err = withStore(func(s *store.SQLiteStore) error {
		svc, err := newServices(cmd.Context(), s, sink.Nop{})
		if err != nil {
			return err
		}
		printNextSteps(cmd.OutOrStdout(), answers, len(svc.registry.List()))
		return nil
	})
	return err
}

func promptAnswers() (initAnswers, error) {
	a := initAnswers{DBPath: cfg.DBPath}

	portPrompt := promptui.Prompt{
		Label:   "Port",
		Default: strconv.Itoa(cfg.Port),
		Validate: func(s string) error {
			p, err := strconv.Atoi(s)
			if err != nil || p <= 0 || p > 65535 {
				return errors.New("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return a, err
	}
	a.Port, _ = strconv.Atoi(portStr)

	dbPrompt := promptui.Prompt{Label: "Database path", Default: a.DBPath}
	if a.DBPath, err = dbPrompt.Run(); err != nil {
		return a, err
	}

	envSelect := promptui.Select{Label: "Environment", Items: []string{"development", "production"}}
	if _, a.Environment, err = envSelect.Run(); err != nil {
		return a, err
	}

	analytics := []string{"none", "ga4", "posthog", "log"}
	sinkSelect := promptui.Select{
		Label: "Forward events to",
		Items: []string{"Nothing", "Google Analytics 4", "PostHog", "Log only"},
	}
	idx, _, err := sinkSelect.Run()
	if err != nil {
		return a, err
	}
	a.Analytics = analytics[idx]

	required := func(s string) error {
		if s == "" {
			return errors.New("required")
		}
		return nil
	}
	switch a.Analytics {
	case "ga4":
		id := promptui.Prompt{Label: "GA4 measurement id", Validate: required}
		if a.GA4.MeasurementID, err = id.Run(); err != nil {
			return a, err
		}
		secret := promptui.Prompt{Label: "GA4 API secret", Mask: '*', Validate: required}
		if a.GA4.APISecret, err = secret.Run(); err != nil {
			return a, err
		}
	case "posthog":
		key := promptui.Prompt{Label: "PostHog project API key", Validate: required}
		if a.PostHog.APIKey, err = key.Run(); err != nil {
			return a, err
		}
		host := promptui.Prompt{Label: "PostHog host", Default: "https://us.i.posthog.com"}
		if a.PostHog.Host, err = host.Run(); err != nil {
			return a, err
		}
	}
	return a, nil
}

// renderConfig turns init answers into splitkit.yaml content. Only the
// chosen values are written so defaults keep applying to everything else.
func renderConfig(a initAnswers) ([]byte, error) {
	f := initFile{Port: a.Port, DBPath: a.DBPath, Environment: a.Environment}
	switch a.Analytics {
	case "ga4":
		ga4 := a.GA4
		f.Analytics.GA4 = &ga4
	case "posthog":
		ph := a.PostHog
		f.Analytics.PostHog = &ph
	case "log":
		f.Analytics.LogEvents = true
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return append([]byte("# splitkit configuration\n"), data...), nil
}

func printNextSteps(w io.Writer, a initAnswers, experiments int) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Wrote %s and seeded %d experiments into %s\n", configPath, experiments, a.DBPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  splitkit serve              start the server")
	fmt.Fprintln(w, "  splitkit list               show experiments")
	fmt.Fprintln(w, "  splitkit results <id>       show experiment statistics")
	fmt.Fprintln(w, "  splitkit funnel analyze registration")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "From the site, fetch assignments with:\n")
	fmt.Fprintf(w, "  GET http://localhost:%d/api/experiments/<id>/assignment\n", a.Port)
}
