// Command shelfmindd runs the shelfmind background scheduler: the daily
// readiness tick, the daily decay tick and notification delivery.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shelfmind/internal/config"
	"shelfmind/internal/daemonrun"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "shelfmindd: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		logLevel    string
		development bool
		runOnStart  bool
	)
	cmd := &cobra.Command{
		Use:           "shelfmindd",
		Short:         "Run the shelfmind scheduler in the foreground",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, _, err := config.Load(strings.TrimSpace(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				ConfigPath:  resolved,
				RunOnStart:  runOnStart,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "development", false, "Human-oriented log output with caller information")
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run the readiness and decay ticks immediately instead of waiting for their hours")
	return cmd
}
