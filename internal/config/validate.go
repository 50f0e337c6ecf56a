package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateProfile,
		c.validateScorer,
		c.validateRecomputer,
		c.validateDecay,
		c.validatePlan,
		c.validateSM2,
		c.validateCatalog,
		c.validateNarrator,
		c.validateDaemon,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateProfile() error {
	p := c.Profile
	if p.HalfLifeDays <= 0 {
		return errors.New("profile.half_life_days must be positive")
	}
	if p.MinWeight <= 0 || p.MinWeight > 1 {
		return errors.New("profile.min_weight must be in (0, 1]")
	}
	if p.MinWeightedEvents < 0 {
		return errors.New("profile.min_weighted_events must be >= 0")
	}
	switch p.Weighting {
	case WeightingRatingXAge, WeightingRating, WeightingAge:
	default:
		return fmt.Errorf("profile.weighting must be one of %s, %s, %s (got %q)", WeightingRatingXAge, WeightingRating, WeightingAge, p.Weighting)
	}
	if err := ensurePositiveMap(map[string]int{
		"profile.theme_min_count": p.ThemeMinCount,
		"profile.top_themes":      p.TopThemes,
		"profile.style_min_count": p.StyleMinCount,
		"profile.length_window":   p.LengthWindow,
	}); err != nil {
		return err
	}
	if p.LengthSmoothing < 0 || p.LengthSmoothing >= 1 {
		return errors.New("profile.length_smoothing must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateScorer() error {
	s := c.Scorer
	if len(s.Weights) != 5 {
		return fmt.Errorf("scorer.weights must have 5 entries (got %d)", len(s.Weights))
	}
	var sum float64
	for _, w := range s.Weights {
		if w < 0 {
			return errors.New("scorer.weights must be non-negative")
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("scorer.weights must sum to 1 (got %.4f)", sum)
	}
	if len(s.Thresholds) != 3 {
		return fmt.Errorf("scorer.thresholds must have 3 entries (got %d)", len(s.Thresholds))
	}
	if !(s.Thresholds[0] > s.Thresholds[1] && s.Thresholds[1] > s.Thresholds[2] && s.Thresholds[2] > 0 && s.Thresholds[0] <= 100) {
		return errors.New("scorer.thresholds must be strictly decreasing within 1..100")
	}
	if s.GapThreshold < 0 || s.GapThreshold > 100 || s.StrengthThreshold < 0 || s.StrengthThreshold > 100 {
		return errors.New("scorer.gap_threshold and scorer.strength_threshold must be in 0..100")
	}
	if s.GapThreshold >= s.StrengthThreshold {
		return errors.New("scorer.gap_threshold must be below scorer.strength_threshold")
	}
	return nil
}

func (c *Config) validateRecomputer() error {
	if c.Recomputer.MinCheckpointIntervalDays < 0 {
		return errors.New("recomputer.min_checkpoint_interval_days must be >= 0")
	}
	if c.Recomputer.TickHour < 0 || c.Recomputer.TickHour > 23 {
		return errors.New("recomputer.tick_hour must be in 0..23")
	}
	return nil
}

func (c *Config) validateDecay() error {
	if c.Decay.DefaultFraction <= 0 || c.Decay.DefaultFraction > 0.5 {
		return errors.New("decay.default_fraction must be in (0, 0.5]")
	}
	if c.Decay.DefaultInactivityDays < 1 {
		return errors.New("decay.default_inactivity_days must be positive")
	}
	if c.Decay.Floor < 0 {
		return errors.New("decay.floor must be >= 0")
	}
	return nil
}

func (c *Config) validatePlan() error {
	p := c.Plan
	if p.MinSize < 1 || p.MaxSize < p.MinSize {
		return errors.New("plan.min_size must be positive and no larger than plan.max_size")
	}
	if p.MinBookScore < 0 || p.MinBookScore > 100 {
		return errors.New("plan.min_book_score must be in 0..100")
	}
	if p.ReaderPaceFloorPagesPerDay <= 0 {
		return errors.New("plan.reader_pace_floor_pages_per_day must be positive")
	}
	if p.AssumedRating < 1 || p.AssumedRating > 5 {
		return errors.New("plan.assumed_rating must be in 1..5")
	}
	if p.PaceWindowDays < 1 {
		return errors.New("plan.pace_window_days must be positive")
	}
	return nil
}

func (c *Config) validateSM2() error {
	s := c.SM2
	if s.EaseFloorScaled < 1 {
		return errors.New("sm2.ease_floor_scaled must be positive")
	}
	if s.EaseDeltaPerQualityStepScaled <= 0 {
		return errors.New("sm2.ease_delta_per_quality_step_scaled must be positive")
	}
	if s.InitialEaseScaled < s.EaseFloorScaled {
		return errors.New("sm2.initial_ease_scaled must be >= sm2.ease_floor_scaled")
	}
	if s.EaseCeilingScaled != 0 && s.EaseCeilingScaled < s.InitialEaseScaled {
		return errors.New("sm2.ease_ceiling_scaled must be 0 (unbounded) or >= sm2.initial_ease_scaled")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("sm2.timezone: %w", err)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	switch c.Catalog.Provider {
	case "none":
	case "http":
		if c.Catalog.BaseURL == "" {
			return errors.New("catalog.base_url must be set when catalog.provider is http")
		}
	case "file":
		if strings.TrimSpace(c.Catalog.FilePath) == "" {
			return errors.New("catalog.file_path must be set when catalog.provider is file")
		}
	default:
		return fmt.Errorf("catalog.provider must be none, http or file (got %q)", c.Catalog.Provider)
	}
	return nil
}

func (c *Config) validateNarrator() error {
	switch c.Narrator.Provider {
	case "none", "ollama":
	case "openai":
		if c.Narrator.APIKey == "" && c.Narrator.BaseURL == "" {
			return errors.New("narrator.api_key must be set when narrator.provider is openai (or set SHELFMIND_LLM_API_KEY)")
		}
	default:
		return fmt.Errorf("narrator.provider must be none, openai or ollama (got %q)", c.Narrator.Provider)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.DecayHour < 0 || c.Daemon.DecayHour > 23 {
		return errors.New("daemon.decay_hour must be in 0..23")
	}
	return ensurePositiveMap(map[string]int{
		"daemon.poll_interval_seconds":  c.Daemon.PollIntervalSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"catalog.timeout_seconds":       c.Catalog.TimeoutSeconds,
		"catalog.concurrency":           c.Catalog.Concurrency,
		"narrator.timeout_seconds":      c.Narrator.TimeoutSeconds,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
