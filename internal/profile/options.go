package profile

import (
	"time"

	"shelfmind/internal/config"
)

// Weighting modes for taste means.
const (
	WeightRatingXAge = config.WeightingRatingXAge
	WeightRating     = config.WeightingRating
	WeightAge        = config.WeightingAge
)

// Options holds the derivation constants.
type Options struct {
	HalfLife             time.Duration
	MinWeight            float64
	MinWeightedEvents    float64
	Weighting            string
	DNFAffectsComplexity bool
	ThemeMinCount        int
	TopThemes            int
	StyleMinCount        int
	LengthWindow         int
	LengthSmoothing      float64
}

// OptionsFromConfig extracts the profile options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Profile
	return Options{
		HalfLife:             cfg.HalfLife(),
		MinWeight:            p.MinWeight,
		MinWeightedEvents:    p.MinWeightedEvents,
		Weighting:            p.Weighting,
		DNFAffectsComplexity: p.DNFAffectsComplexity,
		ThemeMinCount:        p.ThemeMinCount,
		TopThemes:            p.TopThemes,
		StyleMinCount:        p.StyleMinCount,
		LengthWindow:         p.LengthWindow,
		LengthSmoothing:      p.LengthSmoothing,
	}
}

// DefaultOptions returns the options of the default configuration.
func DefaultOptions() Options {
	cfg := config.Default()
	return OptionsFromConfig(&cfg)
}
