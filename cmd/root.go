package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docsmith",
	Short: "AI-powered documentation that follows your repositories around",
	Long: `docsmith watches source repositories and keeps their documentation
current: every push is cloned, analyzed, and rewritten into a fresh
versioned document by an AI generation engine.

Get started:
  docsmith init       Create a starter configuration
  docsmith doctor     Verify credentials and system health
  docsmith analyze    Analyze a repository once, right now
  docsmith serve      Start the monitoring daemon with REST API
  docsmith repo add   Register a repository for monitoring`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.docsmith/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		initCmd,
		serveCmd,
		analyzeCmd,
		pollCmd,
		repoCmd,
		docsCmd,
		jobsCmd,
		profilesCmd,
		registerWebhooksCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
