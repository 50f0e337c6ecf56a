package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shelfmind/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "shelfmind")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.DatabasePath != filepath.Join(wantState, "shelfmind.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.DatabasePath)
	}
	if cfg.LogFilePath() != filepath.Join(wantState, "logs", "shelfmind.log") {
		t.Fatalf("unexpected log file path: %q", cfg.LogFilePath())
	}
	if cfg.Profile.Weighting != config.WeightingRatingXAge {
		t.Fatalf("unexpected weighting: %q", cfg.Profile.Weighting)
	}
	if !cfg.Targets.AutoPromoteOnCompletion || !cfg.Recomputer.NotifyOnTick {
		t.Fatal("expected open-question switches to default on")
	}
	if cfg.Profile.DNFAffectsComplexity {
		t.Fatal("expected dnf_affects_complexity to default off")
	}
	if got := cfg.MinCheckpointInterval().Hours(); got != 7*24 {
		t.Fatalf("unexpected checkpoint interval: %v hours", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "shelfmind.toml")
	body := `
[paths]
state_dir = "` + filepath.ToSlash(tempDir) + `/state"

[profile]
weighting = "Rating"
dnf_affects_complexity = true

[scorer]
thresholds = [80, 55, 30]

[plan]
max_size = 4
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Profile.Weighting != config.WeightingRating {
		t.Fatalf("expected weighting to be lowercased, got %q", cfg.Profile.Weighting)
	}
	if !cfg.Profile.DNFAffectsComplexity {
		t.Fatal("expected dnf_affects_complexity override")
	}
	if cfg.Scorer.Thresholds[0] != 80 || cfg.Plan.MaxSize != 4 {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Scorer, cfg.Plan)
	}
	if cfg.Paths.LogDir != filepath.Join(tempDir, "state", "logs") {
		t.Fatalf("expected log dir under state dir, got %q", cfg.Paths.LogDir)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "shelfmind.toml")
	if err := os.WriteFile(configPath, []byte("[scorer]\nweigths = [1.0]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHELFMIND_NTFY_TOPIC", "https://ntfy.example/shelf")
	t.Setenv("SHELFMIND_LLM_API_KEY", "env-llm")
	t.Setenv("SHELFMIND_CATALOG_API_KEY", "env-catalog")

	configPath := filepath.Join(t.TempDir(), "shelfmind.toml")
	if err := os.WriteFile(configPath, []byte("[narrator]\nprovider = \"openai\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/shelf" {
		t.Fatalf("unexpected ntfy topic %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Narrator.APIKey != "env-llm" || cfg.Narrator.Model == "" {
		t.Fatalf("unexpected narrator settings %+v", cfg.Narrator)
	}
	if cfg.Catalog.APIKey != "env-catalog" {
		t.Fatalf("unexpected catalog key %q", cfg.Catalog.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"weights sum", func(c *config.Config) { c.Scorer.Weights = []float64{0.5, 0.5, 0.5, 0, 0} }, "scorer.weights"},
		{"threshold order", func(c *config.Config) { c.Scorer.Thresholds = []int{50, 75, 25} }, "scorer.thresholds"},
		{"decay fraction", func(c *config.Config) { c.Decay.DefaultFraction = 0.7 }, "decay.default_fraction"},
		{"weighting", func(c *config.Config) { c.Profile.Weighting = "vibes" }, "profile.weighting"},
		{"plan bounds", func(c *config.Config) { c.Plan.MaxSize = 1 }, "plan.min_size"},
		{"sm2 initial", func(c *config.Config) { c.SM2.InitialEaseScaled = 1000 }, "sm2.initial_ease_scaled"},
		{"catalog provider", func(c *config.Config) { c.Catalog.Provider = "ftp" }, "catalog.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestSettingsOmitsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Narrator.APIKey = "secret"
	cfg.Notifications.NtfyTopic = "https://ntfy.example/private"
	settings, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if settings["recomputer.min_checkpoint_interval_days"] != "7" {
		t.Fatalf("unexpected interval setting %q", settings["recomputer.min_checkpoint_interval_days"])
	}
	for key, value := range settings {
		if strings.Contains(value, "secret") || strings.Contains(value, "private") {
			t.Fatalf("secret leaked via %s", key)
		}
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load: exists=%v err=%v", exists, err)
	}
}
