package scoring

import "shelfmind/internal/config"

// Options holds scorer weights and thresholds.
type Options struct {
	// Weights of complexity_match, interest_alignment, completion_likelihood,
	// enjoyment_potential and growth_opportunity.
	Weights [5]float64
	// ReadNow, MaybeLater and NotYet are the lower bounds of the
	// recommendation bands.
	ReadNow    int
	MaybeLater int
	NotYet     int
	// GapThreshold and StrengthThreshold bound factor values for tags.
	GapThreshold      int
	StrengthThreshold int
	TopThemes         int
}

// OptionsFromConfig extracts scorer options from cfg. cfg must be valid.
func OptionsFromConfig(cfg *config.Config) Options {
	var weights [5]float64
	copy(weights[:], cfg.Scorer.Weights)
	return Options{
		Weights:           weights,
		ReadNow:           cfg.Scorer.Thresholds[0],
		MaybeLater:        cfg.Scorer.Thresholds[1],
		NotYet:            cfg.Scorer.Thresholds[2],
		GapThreshold:      cfg.Scorer.GapThreshold,
		StrengthThreshold: cfg.Scorer.StrengthThreshold,
		TopThemes:         cfg.Profile.TopThemes,
	}
}

// DefaultOptions returns the options of the default configuration.
func DefaultOptions() Options {
	cfg := config.Default()
	return OptionsFromConfig(&cfg)
}
