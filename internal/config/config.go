package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	DatabasePath string `toml:"database_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// File tees JSON lines to <log_dir>/shelfmind.log in addition to stdout.
	File bool `toml:"file"`
}

// Profile contains taste-derivation constants.
type Profile struct {
	HalfLifeDays         float64 `toml:"half_life_days"`
	MinWeight            float64 `toml:"min_weight"`
	MinWeightedEvents    float64 `toml:"min_weighted_events"`
	Weighting            string  `toml:"weighting"`
	DNFAffectsComplexity bool    `toml:"dnf_affects_complexity"`
	ThemeMinCount        int     `toml:"theme_min_count"`
	TopThemes            int     `toml:"top_themes"`
	StyleMinCount        int     `toml:"style_min_count"`
	LengthWindow         int     `toml:"length_window"`
	LengthSmoothing      float64 `toml:"length_smoothing"`
}

// Scorer contains factor weights and classification thresholds.
type Scorer struct {
	// Weights apply to complexity_match, interest_alignment,
	// completion_likelihood, enjoyment_potential, growth_opportunity.
	Weights []float64 `toml:"weights"`
	// Thresholds are the read_now, maybe_later and not_yet lower bounds.
	Thresholds        []int `toml:"thresholds"`
	GapThreshold      int   `toml:"gap_threshold"`
	StrengthThreshold int   `toml:"strength_threshold"`
}

// Recomputer contains readiness recomputation settings.
type Recomputer struct {
	MinCheckpointIntervalDays int  `toml:"min_checkpoint_interval_days"`
	TickHour                  int  `toml:"tick_hour"`
	NotifyOnTick              bool `toml:"notify_on_tick"`
}

// Decay contains defaults for new decay rules.
type Decay struct {
	DefaultFraction       float64 `toml:"default_fraction"`
	DefaultInactivityDays int     `toml:"default_inactivity_days"`
	Floor                 int     `toml:"floor"`
}

// Plan contains preparation-path planner bounds.
type Plan struct {
	MinSize                    int     `toml:"min_size"`
	MaxSize                    int     `toml:"max_size"`
	MinBookScore               int     `toml:"min_book_score"`
	ReaderPaceFloorPagesPerDay float64 `toml:"reader_pace_floor_pages_per_day"`
	AssumedRating              int     `toml:"assumed_rating"`
	PaceWindowDays             int     `toml:"pace_window_days"`
}

// SM2 contains spaced-repetition constants.
type SM2 struct {
	EaseFloorScaled               int    `toml:"ease_floor_scaled"`
	EaseDeltaPerQualityStepScaled int    `toml:"ease_delta_per_quality_step_scaled"`
	InitialEaseScaled             int    `toml:"initial_ease_scaled"`
	EaseCeilingScaled             int    `toml:"ease_ceiling_scaled"`
	Timezone                      string `toml:"timezone"`
}

// Targets contains deferred-target behaviour switches.
type Targets struct {
	AutoPromoteOnCompletion bool `toml:"auto_promote_on_completion"`
}

// Catalog configures the enrichment provider.
type Catalog struct {
	// Provider is one of "none", "http" or "file".
	Provider       string `toml:"provider"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	FilePath       string `toml:"file_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Concurrency    int    `toml:"concurrency"`
}

// Narrator configures the optional LLM narrator.
type Narrator struct {
	// Provider is one of "none", "openai" or "ollama".
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BecameReady    bool   `toml:"became_ready"`
}

// Daemon contains scheduler loop timing.
type Daemon struct {
	DecayHour           int `toml:"decay_hour"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// Config encapsulates all configuration values for shelfmind.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Profile       Profile       `toml:"profile"`
	Scorer        Scorer        `toml:"scorer"`
	Recomputer    Recomputer    `toml:"recomputer"`
	Decay         Decay         `toml:"decay"`
	Plan          Plan          `toml:"plan"`
	SM2           SM2           `toml:"sm2"`
	Targets       Targets       `toml:"targets"`
	Catalog       Catalog       `toml:"catalog"`
	Narrator      Narrator      `toml:"narrator"`
	Notifications Notifications `toml:"notifications"`
	Daemon        Daemon        `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("shelfmind.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, filepath.Dir(c.Paths.DatabasePath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "shelfmindd.lock")
}

// PIDPath holds the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "shelfmindd.pid")
}

// LogFilePath is the JSON log file written when logging.file is enabled.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "shelfmind.log")
}

// HalfLife returns the profile age-decay half life.
func (c *Config) HalfLife() time.Duration {
	return time.Duration(c.Profile.HalfLifeDays * 24 * float64(time.Hour))
}

// MinCheckpointInterval returns the checkpoint rate-limit window.
func (c *Config) MinCheckpointInterval() time.Duration {
	return time.Duration(c.Recomputer.MinCheckpointIntervalDays) * 24 * time.Hour
}

// SM2Location returns the scheduling time zone for review due dates.
func (c *Config) SM2Location() *time.Location {
	loc, err := time.LoadLocation(c.SM2.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CatalogTimeout is the per-call enrichment timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// NarratorTimeout is the per-call narrator timeout.
func (c *Config) NarratorTimeout() time.Duration {
	return time.Duration(c.Narrator.TimeoutSeconds) * time.Second
}

// PollInterval is the daemon loop cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.PollIntervalSeconds) * time.Second
}

// Settings flattens the effective configuration into dotted key/value pairs
// for persistence. Secrets are omitted.
func (c *Config) Settings() (map[string]string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("flatten config: %w", err)
	}
	out := make(map[string]string)
	flatten("", tree, out)
	for key := range out {
		if strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "ntfy_topic") {
			delete(out, key)
		}
	}
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := node[key].(map[string]any); ok {
			flatten(full, child, out)
			continue
		}
		out[full] = fmt.Sprint(node[key])
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
