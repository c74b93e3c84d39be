package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mapsharvest-engine/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootOptions struct {
	dataDir   string
	config    string
	tactics   string
	logLevel  string
	logFormat string
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Harvest business listings from Google Maps",
	Long: "engine runs Google Maps searches in a headless browser, collects every\n" +
		"listing in the result feed and writes the details to Excel, CSV or JSON.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logging.Init(logging.ParseLevel(opts.logLevel), opts.logFormat)
	},
}

func init() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.dataDir, "data-dir", envOr("MAPSHARVEST_DATA_DIR", "."), "directory for config, history database and output")
	f.StringVar(&opts.config, "config", os.Getenv("MAPSHARVEST_CONFIG"), "config file (default: <data-dir>/config.yml, seeded from config/config.yml)")
	f.StringVar(&opts.tactics, "tactics", os.Getenv("MAPSHARVEST_TACTICS"), "tactics overlay (default: <data-dir>/tactics.yml, seeded from config/tactics.yml)")
	f.StringVar(&opts.logLevel, "log-level", envOr("MAPSHARVEST_LOG_LEVEL", "info"), "debug|info|warn|error")
	f.StringVar(&opts.logFormat, "log-format", envOr("MAPSHARVEST_LOG_FORMAT", "text"), "text|json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
