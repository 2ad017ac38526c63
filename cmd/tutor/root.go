package main

import (
	"context"
	"os"

	"github.com/calebrin/tutorcore/internal/config"
	"github.com/calebrin/tutorcore/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "tutor",
	Short: "TutorCore - a conversational STEM tutor",
	Long:  `TutorCore routes student messages to tutoring capabilities and tracks learning progress across sessions.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
