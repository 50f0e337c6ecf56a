package domain

import "time"

// DefaultComplexityComfort is used when the profile has no complexity data.
const DefaultComplexityComfort = 5.0

// ThemeStat tallies one theme across completed, rated events.
type ThemeStat struct {
	Theme      string  `json:"theme" yaml:"theme"`
	Count      int     `json:"count" yaml:"count"`
	MeanRating float64 `json:"mean_rating" yaml:"mean_rating"`
}

// Profile is the reader DNA derived from a history prefix. Nil pointers mean
// the axis is unknown.
type Profile struct {
	AsOf                    time.Time                `json:"as_of" yaml:"as_of"`
	EventCount              int                      `json:"event_count" yaml:"event_count"`
	LastEventID             int64                    `json:"last_event_id" yaml:"last_event_id"`
	CharacterVsPlot         *float64                 `json:"character_vs_plot" yaml:"character_vs_plot"`
	ComplexityComfort       *float64                 `json:"complexity_comfort" yaml:"complexity_comfort"`
	PacingMix               map[Pacing]float64       `json:"pacing_mix" yaml:"pacing_mix"`
	FavoriteThemes          []ThemeStat              `json:"favorite_themes" yaml:"favorite_themes"`
	StyleAffinity           map[WritingStyle]float64 `json:"style_affinity" yaml:"style_affinity"`
	CompletionRate          *float64                 `json:"completion_rate" yaml:"completion_rate"`
	LengthToleranceRaw      int                      `json:"length_tolerance_raw" yaml:"length_tolerance_raw"`
	LengthToleranceSmoothed float64                  `json:"length_tolerance_smoothed" yaml:"length_tolerance_smoothed"`
}

// Comfort returns complexity comfort, falling back to the midpoint.
func (p Profile) Comfort() float64 {
	if p.ComplexityComfort == nil {
		return DefaultComplexityComfort
	}
	return *p.ComplexityComfort
}

// CompletionRateOr returns the completion rate or fallback when undefined.
func (p Profile) CompletionRateOr(fallback float64) float64 {
	if p.CompletionRate == nil {
		return fallback
	}
	return *p.CompletionRate
}

// LengthTolerance returns the smoothed tolerance and whether it is known.
func (p Profile) LengthTolerance() (float64, bool) {
	if p.LengthToleranceSmoothed <= 0 {
		return 0, false
	}
	return p.LengthToleranceSmoothed, true
}

// TopThemes returns up to n favorite theme names in ranked order.
func (p Profile) TopThemes(n int) []string {
	if n > len(p.FavoriteThemes) {
		n = len(p.FavoriteThemes)
	}
	out := make([]string, 0, n)
	for _, stat := range p.FavoriteThemes[:n] {
		out = append(out, stat.Theme)
	}
	return out
}

// IsFavoriteTheme reports whether theme is in the favorite set.
func (p Profile) IsFavoriteTheme(theme string) bool {
	for _, stat := range p.FavoriteThemes {
		if stat.Theme == theme {
			return true
		}
	}
	return false
}

// Affinity returns the style affinity and whether it is known.
func (p Profile) Affinity(style WritingStyle) (float64, bool) {
	if !style.IsKnown() || p.StyleAffinity == nil {
		return 0, false
	}
	v, ok := p.StyleAffinity[style]
	return v, ok
}
