package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shelfmind/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		filter logs.Filter
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show entries from the shelfmind log file",
		Long:  "Show entries from the JSON log file that shelfmind and shelfmindd write when logging.file is enabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := filter.Validate(); err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFilePath()
			entries, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			raw := ctx.output() == outputJSON
			if len(entries) == 0 && offset == 0 && !follow {
				fmt.Fprintf(out, "No log entries at %s (set logging.file = true to record them)\n", path)
				return nil
			}
			for _, e := range entries {
				printEntry(out, e, raw)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 250*time.Millisecond, filter, func(e logs.Entry) error {
				printEntry(out, e, raw)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of matching entries to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only entries from this component")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level: debug, info, warn or error")
	cmd.Flags().StringVar(&filter.EventType, "event-type", "", "Only entries with this event_type")
	return cmd
}

func printEntry(w io.Writer, e logs.Entry, raw bool) {
	if raw || e.Level == "" {
		fmt.Fprintln(w, e.Raw)
		return
	}
	var b strings.Builder
	b.WriteString(formatTime(e.Time))
	b.WriteString(" ")
	b.WriteString(strings.ToUpper(e.Level))
	if e.Component != "" {
		b.WriteString(" [" + e.Component + "]")
	}
	b.WriteString(" " + e.Message)
	for _, k := range e.FieldKeys() {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	fmt.Fprintln(w, b.String())
}
