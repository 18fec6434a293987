package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/stats"
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show detailed results including conversion rates, confidence intervals and significance against control.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id := args[0]
	out := cmd.OutOrStdout()

	return withServices(cmd.Context(), func(svc *services) error {
		exp, ok := svc.registry.Get(id)
		if !ok {
			return fmt.Errorf("experiment '%s' not found", id)
		}

		variantStats, err := svc.engine.Stats(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
		result := stats.Analyze(exp, variantStats)

		fmt.Fprintf(out, "EXPERIMENT: %s (%s)\n", exp.ID, exp.Name)
		fmt.Fprintf(out, "STATUS: %s\n", exp.Status)
		fmt.Fprintf(out, "METRIC: %s\n", exp.TargetMetric)
		if exp.WinnerVariant != "" {
			fmt.Fprintf(out, "WINNER: %s\n", exp.WinnerVariant)
		}
		fmt.Fprintln(out)

		table := newTable(out, "VARIANT", "EXPOSURES", "CONVERSIONS", "RATE", "95% CI", "")
		for _, v := range result.Variants {
			indicator := ""
			if v.Index == result.LeadingVariant && len(result.Variants) > 1 {
				indicator = "← LEADING"
			}
			if v.IsControl {
				indicator = "(control) " + indicator
			}

			ci := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
			if v.Exposures == 0 {
				ci = "N/A"
			}

			name := v.Name
			if len(name) > 24 {
				name = name[:21] + "..."
			}
			table.Append([]string{
				name,
				strconv.Itoa(v.Exposures),
				strconv.Itoa(v.Conversions),
				formatPercent(v.Rate),
				ci,
				indicator,
			})
		}
		table.Render()
		fmt.Fprintln(out)

		if len(result.Variants) > 1 {
			printSignificance(cmd, result)
		}
		return nil
	})
}

func printSignificance(cmd *cobra.Command, result *stats.Result) {
	out := cmd.OutOrStdout()
	leadingName := result.Variants[result.LeadingVariant].Name
	confPct := result.ConfidenceLevel * 100
	sig := result.Significance

	switch {
	case result.Confident:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" differs from control (uplift %+.1f%%, p=%.4f)\n",
			confPct, leadingName, sig.Uplift*100, sig.PValue)
	case result.ChanceToBeatControl >= 0.90:
		fmt.Fprintf(out, "Statistical significance: %.1f%% chance \"%s\" beats control (not yet significant)\n",
			result.ChanceToBeatControl*100, result.Variants[result.Challenger].Name)
	default:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	}
}
