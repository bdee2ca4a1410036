package main

import (
	"fmt"
	"os"

	"github.com/cuemby/agrilo/pkg/config"
	"github.com/cuemby/agrilo/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once by the root command before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agrilo",
	Short: "Agrilo - farming assistant from the command line",
	Long: `Agrilo talks to the Agrilo backend: leaf and root disease detection,
soil analysis from manual entry or field sensors, the farm analytics
dashboard, the multilingual farming assistant and soil test bookings.

Run 'agrilo login' first. The session is kept in the data directory and
refreshed automatically while the backend allows it.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Agrilo version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", config.DefaultPath(), "Configuration file")
	flags.String("api-url", "", "Backend API base URL (overrides config)")
	flags.String("data-dir", "", "Directory for the session database (overrides config)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.StringP("output", "o", outputText, "Output format: text, json, yaml")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		loaded.APIURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("data-dir") {
		loaded.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		loaded.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		loaded.Log.JSON, _ = flags.GetBool("log-json")
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	output, _ := flags.GetString("output")
	switch output {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(loaded.Log.Level),
		JSONOutput: loaded.Log.JSON,
	})
	cfg = loaded
	log.Debug("Configuration loaded")
	return nil
}
