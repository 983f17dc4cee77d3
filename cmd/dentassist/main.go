package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/af-corp/dentassist/internal/config"
	"github.com/af-corp/dentassist/internal/telemetry"
)

var version = "dev"

func main() {
	var configDir string

	root := &cobra.Command{
		Use:           "dentassist",
		Short:         "Dental practice assistant gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configDir, "config", "c", "configs", "path to configuration directory")

	root.AddCommand(
		newServeCmd(&configDir),
		newActionsCmd(&configDir),
		newMigrateCmd(&configDir),
		newTokenCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads gateway.yaml for the one-shot subcommands, logging to stderr.
func loadConfig(configDir string) (*config.Config, *slog.Logger, error) {
	logger := telemetry.NewLogger(os.Stderr, "warn", "text")
	loader := config.NewLoader(configDir, logger)
	if err := loader.Load(); err != nil {
		return nil, nil, err
	}
	return loader.Config(), logger, nil
}
