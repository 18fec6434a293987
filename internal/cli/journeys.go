package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/store"
)

func init() {
	journeysCmd := &cobra.Command{
		Use:   "journeys",
		Short: "Manage recorded user journeys",
	}
	journeysCmd.AddCommand(newJourneysImportCmd(), newJourneysShowCmd())
	rootCmd.AddCommand(journeysCmd)
}

func newJourneysImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import journeys from a JSON file",
		Long: `Import journeys from a JSON array, e.g. an export of the web app's
event log. Events are appended to journeys already stored under the same
session id.

Example:
  splitkit journeys import march.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			journeys, err := journey.Decode(f)
			if err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := journey.Import(cmd.Context(), s, journeys); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d journeys\n", len(journeys))
				return nil
			})
		},
	}
}

func newJourneysShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Print the events of one journey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				j, err := s.GetJourney(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "SESSION: %s\n", j.SessionID)
				if j.UserID != "" {
					fmt.Fprintf(out, "USER: %s\n", j.UserID)
				}
				fmt.Fprintf(out, "REVENUE: %s\n\n", formatMoney(j.TotalRevenue))

				table := newTable(out, "TIME", "EVENT", "REVENUE")
				for _, e := range j.SortedEvents() {
					rev := ""
					if e.Revenue != nil {
						rev = formatMoney(*e.Revenue)
					}
					table.Append([]string{e.Timestamp.Format(time.DateTime), e.Name, rev})
				}
				table.Render()
				return nil
			})
		},
	}
}
