package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daybookhq/scribe/internal/client"
	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
)

// Set via -ldflags at release time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Edit Daybook records with automatic saving",
	Long: `Scribe is a command-line client for Daybook workspaces.

It opens notes, tasks and projects as editable working files, watches them
for changes, and pushes edits to the server through a debounced auto-save
loop. Sessions that cannot push their final save leave a local draft that
can be resumed later.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initClient,
}

var (
	cfgFile     string
	logLevel    string
	logFormat   string
	jsonOutput  bool
	noAnalytics bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: ./scribe.yaml, ~/.config/scribe/scribe.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: text, json")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&noAnalytics, "no-analytics", false,
		"Disable usage analytics for this invocation")
}

// Execute runs the CLI and releases client resources afterwards.
func Execute() error {
	defer shutdown()
	return rootCmd.Execute()
}

// initClient loads configuration and wires the client before any command
// runs. Informational commands skip it so 'scribe help' works without a
// config or data directory.
func initClient(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "help", "completion", "version", "__complete":
		return nil
	}

	loader := config.NewLoader(cfgFile)
	loaded, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Log.Level = logLevel
	} else if jsonOutput {
		// Keep stdout parseable when the caller asked for JSON.
		cfg.Log.Level = "error"
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if noAnalytics {
		cfg.Analytics.Enabled = false
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if path := loader.ConfigFileUsed(); path != "" {
		logger.WithField("path", path).Debug("Loaded config file")
	}

	apiClient, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	return nil
}

// shutdown closes the client, flushing pending preference and analytics
// writes. Bounded so a dead server cannot wedge command exit.
func shutdown() {
	if apiClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiClient.Close(ctx); err != nil && logger != nil {
		logger.WithError(err).Warn("Shutdown reported errors")
	}
	apiClient = nil
}
