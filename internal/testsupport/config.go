package testsupport

import (
	"path/filepath"
	"testing"

	"shelfmind/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "state", "shelfmind.db")
	cfgVal.Catalog.Provider = "none"
	cfgVal.Narrator.Provider = "none"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithConfig applies an arbitrary mutation to the test config.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// WithCatalogFile points the file catalog provider at a file under the test
// directory holding contents.
func WithCatalogFile(contents string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "catalog.toml")
		WriteFile(b.t, path, contents)
		b.cfg.Catalog.Provider = "file"
		b.cfg.Catalog.FilePath = path
	}
}

// WithDNFAffectsComplexity toggles the DNF complexity switch.
func WithDNFAffectsComplexity(on bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Profile.DNFAffectsComplexity = on
	}
}

// WithNotifyOnTick toggles became_ready notifications on periodic ticks.
func WithNotifyOnTick(on bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Recomputer.NotifyOnTick = on
	}
}

// WithAutoPromote toggles promotion of targets completed by the reader.
func WithAutoPromote(on bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Targets.AutoPromoteOnCompletion = on
	}
}
