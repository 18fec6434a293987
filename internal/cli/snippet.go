package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/snippets"
)

func init() {
	rootCmd.AddCommand(newSnippetCmd())
}

func newSnippetCmd() *cobra.Command {
	var framework string
	var serverURL string

	cmd := &cobra.Command{
		Use:   "snippet <id>",
		Short: "Generate client code for an experiment",
		Long: `Generate copy-paste-ready client code that fetches the assignment,
records the exposure and reports conversions for an experiment.

Completed experiments with a declared winner get a static configuration
instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			return withServices(cmd.Context(), func(svc *services) error {
				exp, ok := svc.registry.Get(id)
				if !ok {
					return fmt.Errorf("experiment '%s' not found", id)
				}

				var err error
				fw := snippets.Framework(framework)
				if framework == "" {
					if fw, err = promptFramework(); err != nil {
						return err
					}
				}

				url := serverURL
				if url == "" {
					if url, err = promptServerURL(); err != nil {
						return err
					}
				}

				files, err := snippets.Generate(fw, snippetConfig(exp, url))
				if err != nil {
					return fmt.Errorf("failed to generate snippet: %w", err)
				}

				printSnippets(cmd.OutOrStdout(), files)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "f", "", "framework (react, nextjs, html)")
	cmd.Flags().StringVarP(&serverURL, "server-url", "s", "", "server URL (e.g., https://ab.truecheckia.com)")

	return cmd
}

func snippetConfig(exp *experiment.Experiment, serverURL string) snippets.Config {
	c := snippets.Config{
		ExperimentID: exp.ID,
		ServerURL:    serverURL,
		Metric:       exp.TargetMetric,
	}
	for _, v := range exp.Variants {
		c.Variants = append(c.Variants, v.ID)
	}
	if exp.Status == experiment.StatusCompleted && exp.WinnerVariant != "" {
		if v, ok := exp.Variant(exp.WinnerVariant); ok {
			c.Winner = v.ID
			c.WinnerConfig = v.Config
		}
	}
	return c
}

func promptFramework() (snippets.Framework, error) {
	names := map[snippets.Framework]string{
		snippets.FrameworkReact:  "React (hook)",
		snippets.FrameworkNextJS: "Next.js (client component hook)",
		snippets.FrameworkHTML:   "HTML (vanilla JavaScript)",
	}

	items := make([]string, len(snippets.Frameworks))
	for i, f := range snippets.Frameworks {
		items[i] = names[f]
	}

	prompt := promptui.Select{
		Label: "Select framework",
		Items: items,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		return "", err
	}

	return snippets.Frameworks[idx], nil
}

func promptServerURL() (string, error) {
	defaultURL := os.Getenv("SPLITKIT_URL")
	if defaultURL == "" {
		defaultURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	prompt := promptui.Prompt{
		Label:   "Server URL",
		Default: defaultURL,
	}

	result, err := prompt.Run()
	if err != nil {
		return "", err
	}

	return strings.TrimRight(result, "/"), nil
}

func printSnippets(w io.Writer, files []snippets.SnippetFile) {
	for i, file := range files {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, strings.Repeat("=", 62))
		fmt.Fprintf(w, " %s\n", file.Filename)
		fmt.Fprintln(w, strings.Repeat("=", 62))
		fmt.Fprintln(w)
		fmt.Fprintln(w, file.Content)
	}
}
