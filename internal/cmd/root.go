// Package cmd implements the tickflow command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/tickflow/pkg/config"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{Version: "dev", Commit: "HEAD", BuildDate: "unknown"}

// SetVersionInfo is called from main with values injected at build time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

var rootCmd = &cobra.Command{
	Use:   "tickflow",
	Short: "Tick-driven job scheduler and frame cache for live process instrumentation",
	Long: `tickflow runs a fixed-rate tick loop against a target process.

Every tick it dispatches named jobs onto dedicated workers, reclaims jobs
that overrun their budget, and serves remote reads through caches that
refresh once per tick.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().Bool("log-console", false, "Human readable log output")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tickflow %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig returns the configuration named by --config, or the defaults
// when no file is given. The manager is nil in the latter case.
func loadConfig(cmd *cobra.Command) (*config.Config, *config.Manager, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil, nil
	}
	mgr := config.NewManager(path, logx.Logger{})
	cfg, err := mgr.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, mgr, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logx.Logger {
	level := cfg.Log.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	console := cfg.Log.Console
	if flag, _ := cmd.Flags().GetBool("log-console"); flag {
		console = true
	}
	return logx.New(logx.Config{Level: level, Console: console, Out: os.Stderr})
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, d)
}
