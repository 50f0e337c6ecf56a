package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shelfmind/internal/config"
	"shelfmind/internal/engine"
	"shelfmind/internal/logging"
)

type commandContext struct {
	configFlag   *string
	outputFlag   *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, outputFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		outputFlag:   outputFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) output() string {
	if c.outputFlag == nil {
		return outputTable
	}
	return strings.ToLower(strings.TrimSpace(*c.outputFlag))
}

func (c *commandContext) validateOutput() error {
	switch c.output() {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", c.output())
	}
}

// logLevel keeps routine info records off the terminal unless asked for.
func (c *commandContext) logLevel() string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return *c.logLevelFlag
	}
	return "warn"
}

// withEngine opens the store for the duration of fn. Diagnostics go to the
// command's stderr.
func (c *commandContext) withEngine(cmd *cobra.Command, fn func(context.Context, *engine.Engine) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	opts := logging.Options{
		Level:  c.logLevel(),
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	}
	if cfg.Logging.File {
		opts.FilePath = cfg.LogFilePath()
	}
	logger, closeLog, err := logging.New(opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	return fn(ctx, eng)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
