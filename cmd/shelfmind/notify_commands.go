package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shelfmind/internal/domain"
	"shelfmind/internal/engine"
	"shelfmind/internal/store"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Inspect and deliver readiness notifications",
	}
	cmd.AddCommand(newNotificationsListCommand(ctx))
	cmd.AddCommand(&cobra.Command{
		Use:   "deliver",
		Short: "Send pending notifications that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				report, err := eng.DeliverNotifications(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, report, func() string {
					return fmt.Sprintf("%d delivered, %d silenced, %d deferred, %d failed",
						report.Delivered, report.Silenced, report.Deferred, report.Failed)
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				if err := eng.SendTestNotification(c); err != nil {
					return err
				}
				return ctx.emit(cmd, map[string]bool{"sent": true}, func() string { return "Test notification sent" })
			})
		},
	})
	return cmd
}

func newNotificationsListCommand(ctx *commandContext) *cobra.Command {
	var filter store.NotificationFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				items, err := eng.ListNotifications(c, filter)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, items, func() string { return renderNotifications(items) })
			})
		},
	}
	cmd.Flags().BoolVar(&filter.PendingOnly, "pending", false, "Only undelivered records")
	cmd.Flags().Int64Var(&filter.TargetID, "target", 0, "Only records for this target")
	cmd.Flags().Uint64Var(&filter.Limit, "limit", 0, "Maximum number of records")
	return cmd
}

func renderNotifications(items []domain.Notification) string {
	if len(items) == 0 {
		return "No notifications"
	}
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		rows = append(rows, []string{
			n.ID,
			strconv.FormatInt(n.TargetID, 10),
			n.Kind,
			strconv.Itoa(n.Score),
			formatTime(n.CreatedAt),
			formatTimePtr(n.DeliveredAt),
		})
	}
	return renderTable([]string{"ID", "Target", "Kind", "Score", "Created", "Delivered"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft})
}
