package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shelfmind/internal/domain"
	"shelfmind/internal/engine"
)

func newDeferCommand(ctx *commandContext) *cobra.Command {
	var note, mode string
	cmd := &cobra.Command{
		Use:   "defer <book-id>",
		Short: "Put a book on the later shelf and track your readiness for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				res, err := eng.DeferTarget(c, id, note, domain.ReminderMode(strings.ToLower(mode)))
				if err != nil {
					return err
				}
				return ctx.emit(cmd, res, func() string {
					return fmt.Sprintf("Deferred book %d as target %d (%s, score %d, remind %s)",
						res.Target.BookID, res.Target.ID, res.Target.Status, res.Target.CachedScore, res.Target.ReminderMode)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "Why you are waiting")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.ReminderOnReady), "Reminder mode: on_ready, monthly, quarterly or manual")
	return cmd
}

func newTargetCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "target",
		Aliases: []string{"targets"},
		Short:   "Inspect and resolve deferred targets",
	}
	cmd.AddCommand(newTargetListCommand(ctx))
	cmd.AddCommand(newTargetShowCommand(ctx))
	cmd.AddCommand(newTargetCheckpointsCommand(ctx))
	cmd.AddCommand(newTargetFinishCommand(ctx, "promote", "Mark a target as started", (*engine.Engine).PromoteTarget))
	cmd.AddCommand(newTargetFinishCommand(ctx, "abandon", "Give up on a target", (*engine.Engine).AbandonTarget))
	cmd.AddCommand(newTargetDeleteCommand(ctx))
	return cmd
}

func newTargetListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]domain.TargetStatus, 0, len(statuses))
			for _, s := range statuses {
				filter = append(filter, domain.TargetStatus(strings.ToLower(strings.TrimSpace(s))))
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				views, err := eng.ListTargets(c, filter...)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, views, func() string { return renderTargets(views) })
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only targets in these statuses")
	return cmd
}

func newReadyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List targets you are ready for",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				views, err := eng.ListReady(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, views, func() string {
					if len(views) == 0 {
						return "Nothing is ready yet"
					}
					return renderTargets(views)
				})
			})
		},
	}
}

func newTargetShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <target-id>",
		Short: "Show one target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "target")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				view, err := eng.GetTarget(c, id)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, view, func() string {
					t := view.Target
					return renderPairs([][2]string{
						{"ID", strconv.FormatInt(t.ID, 10)},
						{"Book", fmt.Sprintf("%s (%d)", view.Book.Title, t.BookID)},
						{"Status", string(t.Status)},
						{"Score", strconv.Itoa(t.CachedScore)},
						{"Reminder", string(t.ReminderMode)},
						{"Note", t.Note},
						{"Plan", t.PlanID},
						{"Added", formatTime(t.AddedAt)},
						{"Became ready", formatTimePtr(t.BecameReady)},
					})
				})
			})
		},
	}
}

func newTargetCheckpointsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints <target-id>",
		Short: "Show how readiness for a target moved over time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "target")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				cps, err := eng.ShowCheckpoints(c, id)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, cps, func() string { return renderCheckpoints(cps) })
			})
		},
	}
}

type finishFunc func(*engine.Engine, context.Context, int64) (domain.DeferredTarget, error)

func newTargetFinishCommand(ctx *commandContext, use, short string, finish finishFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <target-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "target")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				target, err := finish(eng, c, id)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, target, func() string {
					return fmt.Sprintf("Target %d is now %s", target.ID, target.Status)
				})
			})
		},
	}
}

func newTargetDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <target-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a target and its checkpoints",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "target")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				if err := eng.DeleteTarget(c, id); err != nil {
					return err
				}
				return ctx.emit(cmd, map[string]any{"deleted": id}, func() string {
					return fmt.Sprintf("Deleted target %d", id)
				})
			})
		},
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Re-score every open target now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				report, err := eng.RunReadinessCheck(c)
				if err != nil {
					return err
				}
				view := newRunView(report)
				return ctx.emit(cmd, view, func() string { return renderRun(view) })
			})
		},
	}
}

func renderTargets(views []engine.TargetView) string {
	if len(views) == 0 {
		return "No targets"
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			strconv.FormatInt(v.Target.ID, 10),
			v.Book.Title,
			string(v.Target.Status),
			strconv.Itoa(v.Target.CachedScore),
			string(v.Target.ReminderMode),
			v.Target.Note,
		})
	}
	return renderTable([]string{"ID", "Book", "Status", "Score", "Reminder", "Note"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
}

func renderCheckpoints(cps []domain.Checkpoint) string {
	if len(cps) == 0 {
		return "No checkpoints"
	}
	rows := make([][]string, 0, len(cps))
	for _, cp := range cps {
		gaps := make([]string, len(cp.Gaps))
		for i, g := range cp.Gaps {
			gaps[i] = string(g)
		}
		rows = append(rows, []string{
			formatTime(cp.At),
			strconv.Itoa(cp.Score),
			fmt.Sprintf("%+d", cp.Delta),
			cp.Trigger,
			formatList(gaps),
		})
	}
	return renderTable([]string{"At", "Score", "Delta", "Trigger", "Gaps"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft})
}
