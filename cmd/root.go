package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/chartloom-cli/internal/config"
)

var (
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "chartloom",
	Short: "Chartloom CLI: classify CSV columns and build validated charts",
	Long: `Chartloom loads CSV datasets, infers a role for every column (numeric,
datetime, categorical) and validates chart requests against them. It can
render charts to PNG, export the data behind a chart, or serve the same
operations over an HTTP API.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.chartloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		logger = newLogger(os.Stderr, "info", "text", debug)
		return
	}
	cfg = c
	logger = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat, debug)
}

// newLogger builds the process logger. --debug overrides the configured level.
func newLogger(w io.Writer, level, format string, debug bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// analysisOptions returns the configured loading options, or the defaults
// when no config could be loaded.
func analysisOptions() analysis.Options {
	if cfg == nil {
		return analysis.DefaultOptions()
	}
	return cfg.AnalysisOptions()
}
