package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/config"
	"github.com/truecheckia/splitkit/internal/logger"
)

var (
	configPath string
	dbPath     string
	verbose    bool

	cfg *config.Config
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "splitkit",
	Short: "splitkit - experiments, conversion tracking and funnel analysis",
	Long: `splitkit assigns visitors to experiment variants, records conversions
and analyses funnels and marketing attribution.
Single Go binary with an embedded SQLite database.

Running without a subcommand starts the server (same as 'splitkit serve').`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runServe,
}

func Execute() error {
	defer log.Sync()
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnvOrDefault("SPLITKIT_CONFIG", config.DefaultPath), "config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides the config file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup loads the configuration and builds the logger before any command
// runs.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.DBPath = dbPath
	}
	cfg = loaded

	l, err := logger.New(cfg.Environment, verbose)
	if err != nil {
		return err
	}
	log = l
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
