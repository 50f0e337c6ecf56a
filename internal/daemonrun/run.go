// Package daemonrun assembles the shelfmind daemon process: logging, the
// engine, the scheduler loop and signal handling.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"shelfmind/internal/config"
	"shelfmind/internal/daemon"
	"shelfmind/internal/daemonctl"
	"shelfmind/internal/engine"
	"shelfmind/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// ConfigPath is reported when a reload is requested.
	ConfigPath  string
	RunOnStart  bool
}

// Run starts the shelfmind daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, unix.SIGINT, unix.SIGTERM)
	defer cancel()
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, unix.SIGHUP)
	defer signal.Stop(hangup)

	loggerOpts := logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: opts.Development,
	}
	if opts.LogLevel != "" {
		loggerOpts.Level = opts.LogLevel
	}
	if cfg.Logging.File {
		loggerOpts.FilePath = cfg.LogFilePath()
	}
	logger, closeLog, err := logging.New(loggerOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	logConfigSnapshot(logger, cfg)

	eng, err := engine.Open(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "open engine", "daemon_start_failed",
			logging.String(logging.FieldErrorHint, "check paths.database_path and its directory permissions"),
			logging.Error(err),
		)
		return err
	}
	defer eng.Close()

	d, err := daemon.New(cfg, eng, daemon.Options{RunOnStart: opts.RunOnStart}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	pidPath := cfg.PIDPath()
	if err := daemonctl.WritePID(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	go func() {
		for {
			select {
			case <-signalCtx.Done():
				return
			case <-hangup:
				logging.WarnWithContext(logger, "configuration reload requested", "config_reload_requested",
					logging.String("config_path", opts.ConfigPath),
					logging.String(logging.FieldErrorHint, "restart shelfmindd to apply configuration changes"),
					logging.String(logging.FieldImpact, "daemon keeps running with the configuration it started with"),
				)
			}
		}
	}()

	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("shelfmind daemon shutting down")
	return nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("database_path", cfg.Paths.DatabasePath),
		logging.String("catalog_provider", cfg.Catalog.Provider),
		logging.String("narrator_provider", cfg.Narrator.Provider),
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
		logging.Int("tick_hour", cfg.Recomputer.TickHour),
		logging.Int("decay_hour", cfg.Daemon.DecayHour),
		logging.Bool("notify_on_tick", cfg.Recomputer.NotifyOnTick),
	)
}
