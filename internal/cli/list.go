package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and exposure counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withServices(cmd.Context(), func(svc *services) error {
		exps := svc.registry.List()
		if len(exps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No experiments yet. Create one with: splitkit create <id>")
			return nil
		}

		table := newTable(cmd.OutOrStdout(), "ID", "KIND", "STATUS", "VARIANTS", "TRAFFIC", "EXPOSURES", "CONVERSIONS", "WINNER")
		for _, exp := range exps {
			stats, err := svc.engine.Stats(cmd.Context(), exp.ID)
			if err != nil {
				return fmt.Errorf("failed to get stats for experiment %s: %w", exp.ID, err)
			}

			exposures, conversions := 0, 0
			for _, s := range stats {
				exposures += s.Exposures
				conversions += s.Conversions
			}

			winner := exp.WinnerVariant
			if winner == "" {
				winner = "-"
			}
			table.Append([]string{
				exp.ID,
				string(exp.Kind),
				strings.ToUpper(string(exp.Status)),
				strconv.Itoa(len(exp.Variants)),
				fmt.Sprintf("%d%%", exp.TrafficAllocation),
				formatNumber(exposures),
				formatNumber(conversions),
				winner,
			})
		}
		table.Render()
		return nil
	})
}
