package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/truecheckia/splitkit/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		name     string
		kind     string
		variants string
		traffic  int
		metric   string
		status   string
		file     string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create a new experiment",
		Long: `Create a new experiment from flags or from a YAML file.

Variants are comma-separated ids, optionally with a label after a colon.
For headline and cta experiments the label becomes the headline or button
text. Weights are split evenly and the first variant is the control.

Examples:
  splitkit create hero_v2 --kind headline --variants "control:Detect AI text,bold:Catch every AI word"
  splitkit create cta_v2 --kind cta --variants "control:Start free,go:Try it now" --traffic 50
  splitkit create --file experiments.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var exps []experiment.Experiment
			if file != "" {
				loaded, err := readExperimentsFile(file)
				if err != nil {
					return err
				}
				exps = loaded
			} else {
				if len(args) != 1 {
					return fmt.Errorf("need an experiment id or --file")
				}
				exp, err := buildExperiment(args[0], name, experiment.Kind(kind), variants, traffic, metric, experiment.Status(status))
				if err != nil {
					return err
				}
				exps = []experiment.Experiment{exp}
			}

			for i := range exps {
				if err := exps[i].Validate(); err != nil {
					return err
				}
			}

			return withServices(cmd.Context(), func(svc *services) error {
				for _, exp := range exps {
					if _, exists := svc.registry.Get(exp.ID); exists && !force {
						return fmt.Errorf("experiment '%s' already exists (use --force to replace it)", exp.ID)
					}
				}
				for _, exp := range exps {
					svc.registry.Register(cmd.Context(), exp)
					fmt.Fprintf(cmd.OutOrStdout(), "Created experiment '%s' (%s, %s) with %d variants:\n", exp.ID, exp.Kind, exp.Status, len(exp.Variants))
					for _, v := range exp.Variants {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d%%\n", v.ID, v.Weight)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the id)")
	cmd.Flags().StringVar(&kind, "kind", string(experiment.KindHeadline), "headline, cta, pricing, signup_form or social_proof")
	cmd.Flags().StringVar(&variants, "variants", "", "comma-separated variants, id[:label]")
	cmd.Flags().IntVar(&traffic, "traffic", 100, "share of visitors in the experiment (0-100)")
	cmd.Flags().StringVar(&metric, "metric", "signup_conversion", "target metric")
	cmd.Flags().StringVar(&status, "status", string(experiment.StatusRunning), "initial status")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a list of experiments")
	cmd.Flags().BoolVar(&force, "force", false, "replace existing experiments")

	return cmd
}

// buildExperiment assembles an experiment from create flags.
func buildExperiment(id, name string, kind experiment.Kind, variants string, traffic int, metric string, status experiment.Status) (experiment.Experiment, error) {
	var entries []string
	for _, s := range strings.Split(variants, ",") {
		if s = strings.TrimSpace(s); s != "" {
			entries = append(entries, s)
		}
	}
	if len(entries) < 2 {
		return experiment.Experiment{}, fmt.Errorf("need at least 2 variants. Example: --variants \"control,challenger\"")
	}
	if name == "" {
		name = id
	}

	exp := experiment.Experiment{
		ID:                id,
		Name:              name,
		Kind:              kind,
		Status:            status,
		TrafficAllocation: traffic,
		TargetMetric:      metric,
	}

	share := 100 / len(entries)
	for i, entry := range entries {
		vid, label, _ := strings.Cut(entry, ":")
		vid, label = strings.TrimSpace(vid), strings.TrimSpace(label)

		cfg, err := experiment.EmptyConfig(kind)
		if err != nil {
			return experiment.Experiment{}, err
		}
		switch c := cfg.(type) {
		case experiment.HeadlineConfig:
			c.Headline = label
			cfg = c
		case experiment.CTAConfig:
			c.ButtonText = label
			cfg = c
		}

		weight := share
		if i == 0 {
			weight += 100 - share*len(entries)
		}
		if label == "" {
			label = vid
		}
		exp.Variants = append(exp.Variants, experiment.Variant{
			ID:        vid,
			Name:      label,
			Weight:    weight,
			IsControl: i == 0,
			Config:    cfg,
		})
	}
	return exp, nil
}

func readExperimentsFile(path string) ([]experiment.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var exps []experiment.Experiment
	if err := yaml.Unmarshal(data, &exps); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(exps) == 0 {
		return nil, fmt.Errorf("%s holds no experiments", path)
	}
	return exps, nil
}
