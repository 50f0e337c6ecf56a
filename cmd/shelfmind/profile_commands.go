package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"shelfmind/internal/domain"
	"shelfmind/internal/engine"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect the reader profile derived from your history",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				p, err := eng.ShowProfile(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, p, func() string { return renderProfile(p) })
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "backfill",
		Short: "Rebuild the profile from the full history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				p, err := eng.BackfillProfile(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, p, func() string {
					return fmt.Sprintf("Rebuilt profile from %d events\n\n%s", p.EventCount, renderProfile(p))
				})
			})
		},
	})
	return cmd
}

func renderProfile(p domain.Profile) string {
	themes := make([]string, 0, len(p.FavoriteThemes))
	for _, t := range p.FavoriteThemes {
		themes = append(themes, fmt.Sprintf("%s (%d, %.1f)", t.Theme, t.Count, t.MeanRating))
	}
	styles := make([]string, 0, len(p.StyleAffinity))
	for s, v := range p.StyleAffinity {
		styles = append(styles, fmt.Sprintf("%s %.2f", s, v))
	}
	sort.Strings(styles)
	pacing := make([]string, 0, len(p.PacingMix))
	for k, v := range p.PacingMix {
		pacing = append(pacing, fmt.Sprintf("%s %.2f", k, v))
	}
	sort.Strings(pacing)

	return renderPairs([][2]string{
		{"Events", strconv.Itoa(p.EventCount)},
		{"As of", formatTime(p.AsOf)},
		{"Complexity comfort", formatFloatPtr(p.ComplexityComfort, 2)},
		{"Completion rate", formatFloatPtr(p.CompletionRate, 2)},
		{"Character vs plot", formatFloatPtr(p.CharacterVsPlot, 2)},
		{"Length tolerance", strconv.FormatFloat(p.LengthToleranceSmoothed, 'f', 0, 64)},
		{"Favorite themes", formatList(themes)},
		{"Style affinity", formatList(styles)},
		{"Pacing mix", formatList(pacing)},
	})
}
