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

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <target-id>",
		Short: "Build a reading plan that closes the gaps for a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "target")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				plan, err := eng.Prepare(c, id)
				if err != nil {
					return err
				}
				return renderPlanWithTitles(c, cmd, ctx, eng, plan)
			})
		},
	}
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plan",
		Aliases: []string{"plans"},
		Short:   "Inspect preparation plans",
	}
	cmd.AddCommand(newPlanListCommand(ctx))
	cmd.AddCommand(newPlanShowCommand(ctx))
	cmd.AddCommand(newPlanStatusCommand(ctx))
	return cmd
}

func newPlanListCommand(ctx *commandContext) *cobra.Command {
	var targetID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				plans, err := eng.ListPlans(c, targetID)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, plans, func() string {
					if len(plans) == 0 {
						return "No plans"
					}
					rows := make([][]string, 0, len(plans))
					for _, p := range plans {
						rows = append(rows, []string{
							p.ID,
							strconv.FormatInt(p.TargetBookID, 10),
							string(p.Status),
							strconv.Itoa(len(p.Steps)),
							strconv.Itoa(p.DurationDays),
							strconv.Itoa(p.ProjectedScore),
							formatDate(p.CreatedAt),
						})
					}
					return renderTable([]string{"ID", "Book", "Status", "Steps", "Days", "Projected", "Created"}, rows,
						[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft})
				})
			})
		},
	}
	cmd.Flags().Int64Var(&targetID, "target", 0, "Only plans for this target's book")
	return cmd
}

func newPlanShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show a plan with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				plan, err := eng.GetPlan(c, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return renderPlanWithTitles(c, cmd, ctx, eng, plan)
			})
		},
	}
}

func newPlanStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <plan-id> <abandoned|completed>",
		Short: "Close an active plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.PlanStatus(strings.ToLower(strings.TrimSpace(args[1])))
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				plan, err := eng.SetPlanStatus(c, strings.TrimSpace(args[0]), status)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, plan, func() string {
					return fmt.Sprintf("Plan %s is now %s", plan.ID, plan.Status)
				})
			})
		},
	}
}

func renderPlanWithTitles(c context.Context, cmd *cobra.Command, ctx *commandContext, eng *engine.Engine, plan domain.PreparationPlan) error {
	ids := []int64{plan.TargetBookID}
	for _, s := range plan.Steps {
		ids = append(ids, s.BookID)
	}
	books, err := titles(c, eng, ids)
	if err != nil {
		return err
	}
	return ctx.emit(cmd, plan, func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "Plan %s for %s: %d steps, about %d days, projected score %d (%s)\n",
			plan.ID, books[plan.TargetBookID], len(plan.Steps), plan.DurationDays, plan.ProjectedScore, plan.Status)
		if len(plan.Steps) == 0 {
			b.WriteString("No catalog book closes the remaining gaps")
			return b.String()
		}
		rows := make([][]string, 0, len(plan.Steps))
		for i, s := range plan.Steps {
			rows = append(rows, []string{strconv.Itoa(i + 1), books[s.BookID], string(s.Rationale)})
		}
		b.WriteString(renderTable([]string{"#", "Book", "Closes"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft}))
		return b.String()
	})
}
