// Command prognos runs the forecast pipeline from the command line: load
// question definitions, elicit and synthesize distributions, journal the
// results.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prognos/internal/config"
	"prognos/internal/logging"
)

var version = "0.3.0"

var (
	flagWorkspace string
	flagLogLevel  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prognos",
		Short: "Forecast distribution synthesis and decomposition engine",
		Long: `prognos turns percentile estimates, probabilities, and question
decompositions into submittable forecast distributions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", ".", "workspace directory (config and journal live under .prognos/)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(newForecastCmd())
	rootCmd.AddCommand(newJournalCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the prognos version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("prognos %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

// loadConfig resolves config for the workspace and boots logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagWorkspace)
	if err != nil {
		return config.Config{}, err
	}
	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return config.Config{}, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}
