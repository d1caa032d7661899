package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/zoobzio/scopez/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Loaded by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scopez",
	Short: "Scopez - ambient trace aggregation demo host",
	Long: `Scopez opens trace scopes around units of work, aggregates every event
logged inside a scope and hands the finished record to the configured sinks:
  - console (human readable, optionally colored)
  - structured logging through log/slog
  - SQLite storage
  - Prometheus metrics`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command and exits through atexit so registered
// flushes run.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and SCOPEZ_* variables when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// newLogger builds the host logger from the log section.
func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
