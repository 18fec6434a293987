package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/stats"
)

func init() {
	rootCmd.AddCommand(newAssignCmd())
	rootCmd.AddCommand(newSignificanceCmd())
}

func newAssignCmd() *cobra.Command {
	var (
		sessionID string
		userID    string
		pageURL   string
		userAgent string
	)

	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Show which variant a session gets",
		Long: `Run the assignment for a session id without recording anything.
Useful to check targeting conditions and traffic allocation.

Example:
  splitkit assign hero_headline --session 3f2a... --url https://truecheckia.com/pricing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			return withServices(cmd.Context(), func(svc *services) error {
				if _, ok := svc.registry.Get(id); !ok {
					return fmt.Errorf("experiment '%s' not found", id)
				}

				jar := experiment.NewMemoryJar()
				jar.Set(experiment.SessionCookie, sessionID, experiment.CookieMaxAge)
				v := experiment.Visitor{Jar: jar, URL: pageURL, UserAgent: userAgent}

				a := svc.engine.GetAssignment(cmd.Context(), v, id, userID)
				if a == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Session %s is not in experiment '%s'\n", sessionID, id)
					return nil
				}

				vc, _ := svc.engine.GetConfig(cmd.Context(), v, id, userID)
				raw, err := json.MarshalIndent(vc, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Variant: %s\nConfig: %s\n", a.VariantID, raw)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (required)")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&pageURL, "url", "", "page URL for targeting conditions")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "user agent for targeting conditions")
	return cmd
}

func newSignificanceCmd() *cobra.Command {
	var controlConv, controlN, variantConv, variantN int

	cmd := &cobra.Command{
		Use:   "significance",
		Short: "Run a two-proportion z-test on raw counts",
		Example: `  splitkit significance --control 100/2000 --variant 130/2000
  splitkit significance --control-conversions 50 --control-exposures 1000 --variant-conversions 70 --variant-exposures 1000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c, _ := cmd.Flags().GetString("control"); c != "" {
				if _, err := fmt.Sscanf(c, "%d/%d", &controlConv, &controlN); err != nil {
					return fmt.Errorf("invalid --control %q, want conversions/exposures", c)
				}
			}
			if v, _ := cmd.Flags().GetString("variant"); v != "" {
				if _, err := fmt.Sscanf(v, "%d/%d", &variantConv, &variantN); err != nil {
					return fmt.Errorf("invalid --variant %q, want conversions/exposures", v)
				}
			}
			if controlN <= 0 || variantN <= 0 {
				return fmt.Errorf("exposures must be positive")
			}
			if controlConv < 0 || controlConv > controlN || variantConv < 0 || variantConv > variantN {
				return fmt.Errorf("conversions must be between 0 and exposures")
			}

			s := stats.CalculateSignificance(controlConv, controlN, variantConv, variantN)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Control rate:  %s\n", formatPercent(s.ControlRate))
			fmt.Fprintf(out, "Variant rate:  %s\n", formatPercent(s.VariantRate))
			fmt.Fprintf(out, "Uplift:        %+.2f%%\n", s.Uplift*100)
			fmt.Fprintf(out, "Z-score:       %.4f\n", s.ZScore)
			fmt.Fprintf(out, "P-value:       %.4f\n", s.PValue)
			if s.Significant {
				fmt.Fprintln(out, "Result:        significant at 95%")
			} else {
				fmt.Fprintln(out, "Result:        not significant")
			}
			return nil
		},
	}

	cmd.Flags().String("control", "", "control counts as conversions/exposures")
	cmd.Flags().String("variant", "", "variant counts as conversions/exposures")
	cmd.Flags().IntVar(&controlConv, "control-conversions", 0, "control conversions")
	cmd.Flags().IntVar(&controlN, "control-exposures", 0, "control exposures")
	cmd.Flags().IntVar(&variantConv, "variant-conversions", 0, "variant conversions")
	cmd.Flags().IntVar(&variantN, "variant-exposures", 0, "variant exposures")
	return cmd
}
