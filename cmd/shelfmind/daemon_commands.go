package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"shelfmind/internal/clock"
	"shelfmind/internal/daemonctl"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect and control the shelfmindd background scheduler",
	}
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	cmd.AddCommand(newDaemonStopCommand(ctx))
	cmd.AddCommand(newDaemonReloadCommand(ctx))
	return cmd
}

type daemonStatusView struct {
	Running       bool      `json:"running" yaml:"running"`
	PID           int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	LockPath      string    `json:"lock_path" yaml:"lock_path"`
	PIDPath       string    `json:"pid_path" yaml:"pid_path"`
	NextReadiness time.Time `json:"next_readiness" yaml:"next_readiness"`
	NextDecay     time.Time `json:"next_decay" yaml:"next_decay"`
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and when it next ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.Probe(cfg)
			if err != nil {
				return err
			}
			now := time.Now()
			view := daemonStatusView{
				Running:       status.Running,
				PID:           status.PID,
				LockPath:      status.LockPath,
				PIDPath:       status.PIDPath,
				NextReadiness: clock.NextAt(now, cfg.Recomputer.TickHour, time.Local),
				NextDecay:     clock.NextAt(now, cfg.Daemon.DecayHour, time.Local),
			}
			return ctx.emit(cmd, view, func() string {
				pid := "-"
				if view.PID > 0 {
					pid = strconv.Itoa(view.PID)
				}
				return renderPairs([][2]string{
					{"Running", yesNo(view.Running)},
					{"PID", pid},
					{"Lock file", view.LockPath},
					{"Next readiness tick", formatTime(view.NextReadiness)},
					{"Next decay tick", formatTime(view.NextDecay)},
				})
			})
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon (SIGTERM, then SIGKILL after the grace period)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.Stop(cfg, grace)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case !result.WasRunning:
				fmt.Fprintln(out, "Daemon is not running")
			case result.ForcedKill:
				fmt.Fprintf(out, "Daemon (pid %d) did not exit in time and was killed\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon (pid %d) stopped\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 5*time.Second, "How long to wait before killing the daemon")
	return cmd
}

func newDaemonReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Signal the daemon that its configuration changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pid, err := daemonctl.Reload(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent reload request to daemon (pid %d)\n", pid)
			return nil
		},
	}
}
