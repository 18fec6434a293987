package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/funnel"
)

func init() {
	funnelCmd := &cobra.Command{
		Use:   "funnel",
		Short: "Analyse conversion funnels over recorded journeys",
	}
	funnelCmd.AddCommand(newFunnelListCmd(), newFunnelAnalyzeCmd(), newFunnelCohortCmd(), newFunnelCompareCmd())
	rootCmd.AddCommand(funnelCmd)
}

func newFunnelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered funnels",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := newTable(cmd.OutOrStdout(), "ID", "NAME", "STEPS")
			for _, def := range newFunnels(cfg).Funnels() {
				table.Append([]string{def.ID, def.Name, strconv.Itoa(len(def.Steps))})
			}
			table.Render()
			return nil
		},
	}
}

func newFunnelAnalyzeCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "analyze <funnel>",
		Short: "Show step conversion, drop-off and timing",
		Example: `  splitkit funnel analyze registration
  splitkit funnel analyze subscription --from 2026-03-01 --to 2026-03-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dr, err := funnel.ParseDateRange(from, to)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(svc *services) error {
				journeys, err := svc.store.ListJourneys(cmd.Context(), dr.From, dr.To)
				if err != nil {
					return fmt.Errorf("failed to list journeys: %w", err)
				}
				a, err := svc.funnels.AnalyzeFunnel(args[0], journeys, dr)
				if err != nil {
					return err
				}
				printAnalysis(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive")
	return cmd
}

func newFunnelCohortCmd() *cobra.Command {
	var by, granularity, from, to string

	cmd := &cobra.Command{
		Use:     "cohort <funnel>",
		Short:   "Compare funnel conversion across cohorts",
		Example: `  splitkit funnel cohort registration --by signup_date --granularity month`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dr, err := funnel.ParseDateRange(from, to)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(svc *services) error {
				journeys, err := svc.store.ListJourneys(cmd.Context(), dr.From, dr.To)
				if err != nil {
					return fmt.Errorf("failed to list journeys: %w", err)
				}
				cohorts, err := svc.funnels.AnalyzeFunnelByCohort(args[0], journeys, funnel.CohortBy(by), funnel.Granularity(granularity))
				if err != nil {
					return err
				}
				if len(cohorts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No journeys in range.")
					return nil
				}

				header := []string{"COHORT", "USERS"}
				for _, s := range cohorts[0].Analysis.Steps {
					header = append(header, s.Step.Name)
				}
				header = append(header, "OVERALL")

				table := newTable(cmd.OutOrStdout(), header...)
				for _, c := range cohorts {
					row := []string{c.Key, strconv.Itoa(c.Analysis.TotalUsers)}
					for _, s := range c.Analysis.Steps {
						row = append(row, formatPercent(s.CompletionRate))
					}
					row = append(row, formatPercent(c.Analysis.OverallConversionRate))
					table.Append(row)
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", string(funnel.CohortSignupDate), "signup_date, source, campaign or device_type")
	cmd.Flags().StringVar(&granularity, "granularity", string(funnel.Week), "day, week or month (signup_date only)")
	cmd.Flags().StringVar(&from, "from", "", "first day")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive")
	return cmd
}

func newFunnelCompareCmd() *cobra.Command {
	var baseFrom, baseTo, from, to string

	cmd := &cobra.Command{
		Use:     "compare <funnel>",
		Short:   "Compare a funnel between two periods",
		Example: `  splitkit funnel compare registration --baseline-from 2026-02-01 --baseline-to 2026-02-28 --from 2026-03-01 --to 2026-03-31`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseRange, err := funnel.ParseDateRange(baseFrom, baseTo)
			if err != nil {
				return fmt.Errorf("baseline: %w", err)
			}
			compRange, err := funnel.ParseDateRange(from, to)
			if err != nil {
				return err
			}

			return withServices(cmd.Context(), func(svc *services) error {
				journeys, err := svc.store.ListJourneys(cmd.Context(), time.Time{}, time.Time{})
				if err != nil {
					return fmt.Errorf("failed to list journeys: %w", err)
				}
				baseline, err := svc.funnels.AnalyzeFunnel(args[0], journeys, baseRange)
				if err != nil {
					return err
				}
				comparison, err := svc.funnels.AnalyzeFunnel(args[0], journeys, compRange)
				if err != nil {
					return err
				}

				cmp := funnel.CompareFunnels(baseline, comparison)
				table := newTable(cmd.OutOrStdout(), "STEP", "BASELINE", "COMPARISON", "DELTA", "")
				for _, s := range cmp.Steps {
					flag := ""
					if s.Significant {
						flag = "*"
					}
					table.Append([]string{
						s.StepName,
						formatPercent(s.BaselineRate),
						formatPercent(s.ComparisonRate),
						fmt.Sprintf("%+.2f pts", s.Delta*100),
						flag,
					})
				}
				table.Render()
				fmt.Fprintf(cmd.OutOrStdout(), "\nOverall: %+.2f pts (* = change above %.0f pts)\n", cmp.OverallDelta*100, funnel.SignificantChange*100)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&baseFrom, "baseline-from", "", "baseline first day")
	cmd.Flags().StringVar(&baseTo, "baseline-to", "", "baseline last day, inclusive")
	cmd.Flags().StringVar(&from, "from", "", "comparison first day")
	cmd.Flags().StringVar(&to, "to", "", "comparison last day, inclusive")
	return cmd
}

func printAnalysis(w io.Writer, a *funnel.Analysis) {
	fmt.Fprintf(w, "FUNNEL: %s (%s)\n", a.FunnelName, a.FunnelID)
	fmt.Fprintf(w, "USERS: %s\n\n", formatNumber(a.TotalUsers))

	table := newTable(w, "STEP", "USERS", "CONVERSION", "DROP-OFF", "AVG TIME", "MEDIAN", "")
	for _, s := range a.Steps {
		flag := ""
		if s.IsBottleneck {
			flag = "BOTTLENECK"
		}
		table.Append([]string{
			s.Step.Name,
			formatNumber(s.Users),
			formatPercent(s.CompletionRate),
			formatPercent(s.DropoffRate),
			s.AvgTimeToComplete.Round(time.Second).String(),
			s.MedianTimeToComplete.Round(time.Second).String(),
			flag,
		})
	}
	table.Render()

	fmt.Fprintf(w, "\nOverall conversion: %s\n", formatPercent(a.OverallConversionRate))
	if a.BiggestDropoff != nil {
		fmt.Fprintf(w, "Biggest drop-off: %s (%s)\n", a.BiggestDropoff.Step.Name, formatPercent(a.BiggestDropoff.DropoffRate))
	}
	if len(a.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range a.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}
