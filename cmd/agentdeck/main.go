// Command agentdeck runs and inspects headless coding-agent sessions.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "Run and inspect headless coding-agent sessions",
	Long: `Agentdeck spawns coding-agent CLIs (claude, codex, gemini, cursor)
in headless mode, normalizes their output into hook events, and keeps a
bounded per-session transcript with a complete on-disk log.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.agentdeck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newTranscriptCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger creates a structured logger with the configured verbosity.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentdeck/config.yaml"
	}
	return home + "/.agentdeck/config.yaml"
}
