package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/experiment"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export raw experiment results",
	Long: `Export raw exposure and metric rows in CSV or JSON format.

Examples:
  splitkit export hero_headline --format csv > hero.csv
  splitkit export hero_headline --format json > hero.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withServices(cmd.Context(), func(svc *services) error {
		if _, ok := svc.registry.Get(id); !ok {
			return fmt.Errorf("experiment '%s' not found", id)
		}

		results, err := svc.store.Results(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to get results: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), results)
		}
		return exportJSON(cmd.OutOrStdout(), results)
	})
}

func exportCSV(out io.Writer, results []experiment.Result) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "variant", "metric", "value", "session_id"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range results {
		row := []string{
			strconv.FormatInt(r.RecordedAt.Unix(), 10),
			r.VariantID,
			r.Metric,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			r.SessionID,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

type jsonExport struct {
	Results []experiment.Result `json:"results"`
}

func exportJSON(out io.Writer, results []experiment.Result) error {
	if results == nil {
		results = []experiment.Result{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonExport{Results: results})
}
