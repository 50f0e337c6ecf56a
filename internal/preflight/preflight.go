package preflight

import (
	"context"
	"fmt"
	"strings"

	"shelfmind/internal/catalog"
	"shelfmind/internal/config"
	"shelfmind/internal/daemonctl"
	"shelfmind/internal/narrator"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	Detail string `json:"detail" yaml:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("State directory", cfg.Paths.StateDir)}
	if cfg.Logging.File {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckDatabase(ctx, cfg))
	results = append(results, checkCatalog(ctx, cfg))
	results = append(results, checkNarrator(ctx, cfg))
	results = append(results, checkNotifications(ctx, cfg))
	results = append(results, checkDaemon(cfg))
	return results
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

func checkCatalog(ctx context.Context, cfg *config.Config) Result {
	const name = "Catalog"
	provider := strings.ToLower(strings.TrimSpace(cfg.Catalog.Provider))
	if provider == "" || provider == "none" {
		return skipped(name)
	}
	if _, err := catalog.NewProvider(cfg); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s provider unusable (%v)", provider, err)}
	}
	if provider != "http" {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s provider loaded", provider)}
	}
	return CheckHTTP(ctx, name, cfg.Catalog.BaseURL, cfg.CatalogTimeout())
}

func checkNarrator(ctx context.Context, cfg *config.Config) Result {
	const name = "Narrator"
	provider := strings.ToLower(strings.TrimSpace(cfg.Narrator.Provider))
	if provider == "" || provider == "none" {
		return skipped(name)
	}
	if _, err := narrator.New(cfg); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s narrator unusable (%v)", provider, err)}
	}
	if strings.TrimSpace(cfg.Narrator.BaseURL) == "" {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s narrator configured with its default endpoint", provider)}
	}
	return CheckHTTP(ctx, name, cfg.Narrator.BaseURL, cfg.NarratorTimeout())
}

func checkNotifications(ctx context.Context, cfg *config.Config) Result {
	const name = "Notifications"
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return skipped(name)
	}
	server, err := serverRoot(topic)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return CheckHTTP(ctx, name, server, 0)
}

func checkDaemon(cfg *config.Config) Result {
	const name = "Daemon"
	status, err := daemonctl.Probe(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !status.Running {
		return Result{Name: name, Passed: true, Detail: "not running (readiness ticks only happen on demand)"}
	}
	if status.PID > 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("running (pid %d)", status.PID)}
	}
	return Result{Name: name, Passed: true, Detail: "running"}
}

func skipped(name string) Result {
	return Result{Name: name, Passed: true, Detail: "not configured"}
}
