package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
	rootCmd.AddCommand(newStatusCmd())
}

func newWinnerCmd() *cobra.Command {
	var variantID string

	cmd := &cobra.Command{
		Use:   "winner <id>",
		Short: "Declare a winner for an experiment",
		Long: `Declare a winning variant for an experiment and complete it.

Visitors already assigned keep their variant; the dashboard and results
show the declared winner.

Example:
  splitkit winner hero_headline --variant benefit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			return withServices(cmd.Context(), func(svc *services) error {
				exp, ok := svc.registry.Get(id)
				if !ok {
					return fmt.Errorf("experiment not found: %s", id)
				}

				// Validate experiment is running
				if exp.Status != experiment.StatusRunning {
					return fmt.Errorf("experiment is not running (current status: %s)", exp.Status)
				}

				v, ok := exp.Variant(variantID)
				if !ok {
					ids := make([]string, len(exp.Variants))
					for i, v := range exp.Variants {
						ids[i] = v.ID
					}
					return fmt.Errorf("invalid variant: %s (experiment has variants %v)", variantID, ids)
				}

				if err := svc.registry.DeclareWinner(cmd.Context(), id, variantID); err != nil {
					return fmt.Errorf("failed to set winner: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Declared winner for experiment '%s': %s (\"%s\")\n", id, v.ID, v.Name)
				fmt.Fprintln(cmd.OutOrStdout(), "Experiment has been marked as completed.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&variantID, "variant", "", "winning variant id (required)")
	cmd.MarkFlagRequired("variant")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <draft|running|paused|completed>",
		Short: "Change the status of an experiment",
		Long: `Change the status of an experiment. Only running experiments assign
new visitors.

Example:
  splitkit status pricing_display paused`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, status := args[0], experiment.Status(args[1])

			return withServices(cmd.Context(), func(svc *services) error {
				if err := svc.registry.SetStatus(cmd.Context(), id, status); err != nil {
					return fmt.Errorf("failed to set status: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is now %s\n", id, status)
				return nil
			})
		},
	}
}
