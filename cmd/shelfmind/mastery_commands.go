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

func newMasteryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mastery",
		Short: "Track how well you know books, skills and topics",
	}
	cmd.AddCommand(newMasteryTouchCommand(ctx, "set", "Set a mastery level by hand", false))
	cmd.AddCommand(newMasteryTouchCommand(ctx, "review", "Record a review of an entity", true))
	cmd.AddCommand(newMasteryShowCommand(ctx))
	cmd.AddCommand(newMasteryListCommand(ctx))
	cmd.AddCommand(newMasteryHistoryCommand(ctx))
	return cmd
}

func newMasteryTouchCommand(ctx *commandContext, use, short string, review bool) *cobra.Command {
	var note, category string
	cmd := &cobra.Command{
		Use:   use + " <kind:name> <0-100>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[1])
			if err != nil {
				return domain.NewValidationError("mastery", fmt.Sprintf("expected an integer 0-100, got %q", args[1]))
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				var entity domain.MasteryEntity
				if review {
					entity, err = eng.ReviewMastery(c, args[0], value, note)
				} else {
					entity, err = eng.SetMastery(c, args[0], value, note, category)
				}
				if err != nil {
					return err
				}
				return ctx.emit(cmd, entity, func() string {
					return fmt.Sprintf("%s mastery is %d", entity.Key, entity.Mastery)
				})
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Audit note")
	if !review {
		cmd.Flags().StringVar(&category, "category", "", "Category used by decay selectors")
	}
	return cmd
}

func newMasteryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind:name>",
		Short: "Show one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				entity, err := eng.GetMastery(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, entity, func() string { return renderEntities([]domain.MasteryEntity{entity}) })
			})
		},
	}
}

func newMasteryListCommand(ctx *commandContext) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mastery entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				entities, err := eng.ListMastery(c, category)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, entities, func() string { return renderEntities(entities) })
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only entities in this category")
	return cmd
}

func newMasteryHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <kind:name>",
		Short: "Show the audit trail of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				audits, err := eng.MasteryHistory(c, args[0], limit)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, audits, func() string {
					if len(audits) == 0 {
						return "No changes recorded"
					}
					rows := make([][]string, 0, len(audits))
					for _, a := range audits {
						rule := "-"
						if a.RuleID != nil {
							rule = strconv.FormatInt(*a.RuleID, 10)
						}
						rows = append(rows, []string{
							formatTime(a.At),
							string(a.Cause),
							fmt.Sprintf("%d -> %d", a.OldValue, a.NewValue),
							rule,
							a.Note,
						})
					}
					return renderTable([]string{"At", "Cause", "Change", "Rule", "Note"}, rows, nil)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the most recent changes (0 for all)")
	return cmd
}

func newDecayCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Manage mastery decay rules",
	}
	cmd.AddCommand(newDecaySetCommand(ctx))
	cmd.AddCommand(newDecayDisableCommand(ctx))
	cmd.AddCommand(newDecayListCommand(ctx))
	cmd.AddCommand(newDecayTickCommand(ctx))
	return cmd
}

func newDecaySetCommand(ctx *commandContext) *cobra.Command {
	var (
		days     int
		fraction float64
		floor    int
	)
	cmd := &cobra.Command{
		Use:   "set <category:name|ids:key,key>",
		Short: "Create or replace a decay rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.DecayRuleInput{Selector: args[0]}
			if cmd.Flags().Changed("days") {
				in.InactivityDays = domain.IntPtr(days)
			}
			if cmd.Flags().Changed("fraction") {
				in.Fraction = domain.FloatPtr(fraction)
			}
			if cmd.Flags().Changed("floor") {
				in.Floor = domain.IntPtr(floor)
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				rule, err := eng.SetDecayRule(c, in)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, rule, func() string { return renderRules([]domain.DecayRule{rule}) })
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Days of inactivity before decay applies")
	cmd.Flags().Float64Var(&fraction, "fraction", 0, "Fraction of mastery lost per tick, at most 0.5")
	cmd.Flags().IntVar(&floor, "floor", 0, "Mastery never decays below this value")
	return cmd
}

func newDecayDisableCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <selector>",
		Short: "Deactivate a decay rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				rule, err := eng.DisableDecayRule(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, rule, func() string {
					return fmt.Sprintf("Disabled rule %d (%s)", rule.ID, rule.Selector.Canonical())
				})
			})
		},
	}
}

func newDecayListCommand(ctx *commandContext) *cobra.Command {
	var enabled bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decay rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				rules, err := eng.ListDecayRules(c, enabled)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, rules, func() string { return renderRules(rules) })
			})
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", false, "Only enabled rules")
	return cmd
}

func newDecayTickCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Apply every enabled decay rule now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				report, err := eng.TickDecay(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, report, func() string {
					var b strings.Builder
					fmt.Fprintf(&b, "Decay run %s: %d rules, %d changed, %d skipped, %d failed",
						report.RunID, report.Rules, len(report.Changes), report.Skipped, report.Failed)
					for _, ch := range report.Changes {
						fmt.Fprintf(&b, "\n%s: %d -> %d (rule %d)", ch.EntityKey, ch.Old, ch.New, ch.RuleID)
					}
					return b.String()
				})
			})
		},
	}
}

func renderEntities(entities []domain.MasteryEntity) string {
	if len(entities) == 0 {
		return "No entities"
	}
	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []string{
			e.Key,
			e.Category,
			strconv.Itoa(e.Mastery),
			formatTime(e.LastTouchedAt),
			formatTimePtr(e.LastDecayAt),
		})
	}
	return renderTable([]string{"Key", "Category", "Mastery", "Touched", "Decayed"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
}

func renderRules(rules []domain.DecayRule) string {
	if len(rules) == 0 {
		return "No decay rules"
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Selector.Canonical(),
			strconv.Itoa(r.InactivityDays),
			strconv.FormatFloat(r.Fraction, 'f', 2, 64),
			strconv.Itoa(r.Floor),
			yesNo(r.Enabled),
		})
	}
	return renderTable([]string{"ID", "Selector", "Days", "Fraction", "Floor", "Enabled"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft})
}
