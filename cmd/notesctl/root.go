package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/app/bootstrap"
)

var (
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "notesctl",
	Short: "Operate the notes service",
	Long: `notesctl talks to the same postgres and redis instances as the notes API.
It can create and list notes through the service, tail the notes stream and apply migrations.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "configs/default.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "Path to the service config file")
}

func openRuntime(ctx context.Context) *bootstrap.Runtime {
	rt, err := bootstrap.NewRuntime(ctx, configPath, bootstrap.WithLogOutput(os.Stderr))
	if err != nil {
		fatal("Failed to start runtime", err)
	}
	return rt
}
