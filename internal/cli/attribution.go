package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/attribution"
	"github.com/truecheckia/splitkit/internal/funnel"
)

var (
	attrModel string
	attrFrom  string
	attrTo    string
)

var attributionCmd = &cobra.Command{
	Use:   "attribution",
	Short: "Attribute conversions to marketing channels",
}

var attributionChannelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Show attributed conversions and revenue per channel",
	Long: `Show attributed conversions and revenue per channel and campaign.

Models: first_touch, last_touch, linear, time_decay, position_based.
Use --model all to compare every model side by side.

Examples:
  splitkit attribution channels
  splitkit attribution channels --model time_decay --from 2026-03-01`,
	RunE: runAttributionChannels,
}

var attributionPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show the most common converting channel paths",
	RunE:  runAttributionPaths,
}

func init() {
	attributionChannelsCmd.Flags().StringVarP(&attrModel, "model", "m", string(attribution.Linear), "attribution model, or 'all'")
	attributionCmd.PersistentFlags().StringVar(&attrFrom, "from", "", "first day")
	attributionCmd.PersistentFlags().StringVar(&attrTo, "to", "", "last day, inclusive")
	attributionCmd.AddCommand(attributionChannelsCmd, attributionPathsCmd)
	rootCmd.AddCommand(attributionCmd)
}

func runAttributionChannels(cmd *cobra.Command, args []string) error {
	dr, err := funnel.ParseDateRange(attrFrom, attrTo)
	if err != nil {
		return err
	}

	var model attribution.Model
	if attrModel != "all" {
		if model, err = attribution.ParseModel(attrModel); err != nil {
			return err
		}
	}

	return withServices(cmd.Context(), func(svc *services) error {
		journeys, err := svc.store.ListJourneys(cmd.Context(), dr.From, dr.To)
		if err != nil {
			return fmt.Errorf("failed to list journeys: %w", err)
		}
		out := cmd.OutOrStdout()

		if model == "" {
			reports, err := svc.attribution.CompareModels(journeys)
			if err != nil {
				return err
			}
			for i, r := range reports {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "MODEL: %s\n", r.Model)
				printChannels(out, r.Channels)
			}
			return nil
		}

		channels, err := svc.attribution.AnalyzeChannels(journeys, model)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "MODEL: %s\n", model)
		printChannels(out, channels)

		campaigns, err := svc.attribution.AnalyzeCampaigns(journeys, model)
		if err != nil {
			return err
		}
		if len(campaigns) > 0 {
			fmt.Fprintln(out)
			table := newTable(out, "CAMPAIGN", "SOURCE", "MEDIUM", "CONVERSIONS", "REVENUE")
			for _, c := range campaigns {
				table.Append([]string{
					c.Campaign,
					c.Source,
					c.Medium,
					strconv.FormatFloat(c.Conversions, 'f', 2, 64),
					formatMoney(c.Revenue),
				})
			}
			table.Render()
		}
		return nil
	})
}

func printChannels(w io.Writer, channels []attribution.ChannelStats) {
	if len(channels) == 0 {
		fmt.Fprintln(w, "No conversions in range.")
		return
	}
	table := newTable(w, "CHANNEL", "CONVERSIONS", "REVENUE", "TOUCHPOINTS")
	for _, c := range channels {
		table.Append([]string{
			c.Channel,
			strconv.FormatFloat(c.Conversions, 'f', 2, 64),
			formatMoney(c.Revenue),
			strconv.Itoa(c.Touchpoints),
		})
	}
	table.Render()
}

func runAttributionPaths(cmd *cobra.Command, args []string) error {
	dr, err := funnel.ParseDateRange(attrFrom, attrTo)
	if err != nil {
		return err
	}

	return withServices(cmd.Context(), func(svc *services) error {
		journeys, err := svc.store.ListJourneys(cmd.Context(), dr.From, dr.To)
		if err != nil {
			return fmt.Errorf("failed to list journeys: %w", err)
		}

		paths := svc.attribution.TopConversionPaths(journeys)
		if len(paths) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversions in range.")
			return nil
		}
		table := newTable(cmd.OutOrStdout(), "PATH", "CONVERSIONS", "REVENUE", "AVG TOUCHES")
		for _, p := range paths {
			table.Append([]string{
				p.Path,
				strconv.Itoa(p.Conversions),
				formatMoney(p.Revenue),
				strconv.FormatFloat(p.AvgTouchpoints, 'f', 1, 64),
			})
		}
		table.Render()
		return nil
	})
}

func formatMoney(v float64) string {
	return fmt.Sprintf("R$ %.2f", v)
}
