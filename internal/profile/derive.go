package profile

import (
	"math"
	"sort"
	"time"

	"shelfmind/internal/domain"
)

// Derive computes the profile of a state. Ages are measured against the
// state's own as-of instant so the result depends only on the history.
func Derive(s State, opts Options) domain.Profile {
	p := domain.Profile{
		AsOf:                    s.AsOf(),
		EventCount:              len(s.Entries),
		LastEventID:             s.LastEventID(),
		PacingMix:               map[domain.Pacing]float64{},
		FavoriteThemes:          []domain.ThemeStat{},
		StyleAffinity:           map[domain.WritingStyle]float64{},
		LengthToleranceRaw:      s.LengthRaw,
		LengthToleranceSmoothed: s.LengthSmoothed,
	}

	var (
		cvpSum, cvpWeight float64
		cxSum, cxWeight   float64
		completed, dnf    int
		pacingCounts      = map[domain.Pacing]int{}
		pacingTotal       int
		themes            = map[string]*themeTally{}
		styles            = map[domain.WritingStyle]*styleTally{}
	)
	for _, e := range s.Entries {
		switch e.Status {
		case domain.CompletionCompleted:
			completed++
		case domain.CompletionDNF:
			dnf++
		}
		age := ageDecay(e, p.AsOf, opts)

		if e.Status == domain.CompletionDNF && opts.DNFAffectsComplexity && e.Complexity != nil {
			cxSum += age * math.Max(1, float64(*e.Complexity-2))
			cxWeight += age
		}

		rating, ok := e.rated()
		if !ok {
			continue
		}
		w := weight(rating, age, opts)
		if e.CVP != nil {
			cvpSum += w * *e.CVP
			cvpWeight += w
		}
		if e.Complexity != nil {
			cxSum += w * float64(*e.Complexity)
			cxWeight += w
		}
		if e.Pacing != "" {
			pacingCounts[e.Pacing]++
			pacingTotal++
		}
		if e.ThemesKnown {
			for _, theme := range e.Themes {
				tally := themes[theme]
				if tally == nil {
					tally = &themeTally{}
					themes[theme] = tally
				}
				tally.count++
				tally.ratingSum += age * float64(rating)
				tally.weight += age
			}
		}
		if e.Style.IsKnown() {
			tally := styles[e.Style]
			if tally == nil {
				tally = &styleTally{}
				styles[e.Style] = tally
			}
			tally.count++
			tally.sum += float64(rating) / 5
		}
	}

	if cvpWeight > opts.MinWeightedEvents {
		v := clamp(cvpSum/cvpWeight, -1, 1)
		p.CharacterVsPlot = &v
	}
	if cxWeight > opts.MinWeightedEvents {
		v := clamp(cxSum/cxWeight, 1, 10)
		p.ComplexityComfort = &v
	}
	for pacing, n := range pacingCounts {
		p.PacingMix[pacing] = float64(n) / float64(pacingTotal)
	}
	p.FavoriteThemes = favoriteThemes(themes, opts)
	for style, tally := range styles {
		if tally.count >= opts.StyleMinCount {
			p.StyleAffinity[style] = tally.sum / float64(tally.count)
		}
	}
	if denom := completed + dnf; denom > 0 {
		rate := float64(completed) / float64(denom)
		p.CompletionRate = &rate
	}
	return p
}

type themeTally struct {
	count     int
	ratingSum float64
	weight    float64
}

type styleTally struct {
	count int
	sum   float64
}

func favoriteThemes(themes map[string]*themeTally, opts Options) []domain.ThemeStat {
	out := []domain.ThemeStat{}
	for theme, tally := range themes {
		if tally.count < opts.ThemeMinCount || tally.weight == 0 {
			continue
		}
		out = append(out, domain.ThemeStat{Theme: theme, Count: tally.count, MeanRating: tally.ratingSum / tally.weight})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanRating != out[j].MeanRating {
			return out[i].MeanRating > out[j].MeanRating
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Theme < out[j].Theme
	})
	if opts.TopThemes > 0 && len(out) > opts.TopThemes {
		out = out[:opts.TopThemes]
	}
	return out
}

// ageDecay is max(min_weight, 0.5^(age/half_life)).
func ageDecay(e Entry, asOf time.Time, opts Options) float64 {
	if opts.HalfLife <= 0 {
		return 1
	}
	age := asOf.Sub(e.At)
	if age < 0 {
		age = 0
	}
	decay := math.Pow(0.5, float64(age)/float64(opts.HalfLife))
	return math.Max(opts.MinWeight, decay)
}

func weight(rating int, age float64, opts Options) float64 {
	switch opts.Weighting {
	case WeightRating:
		return float64(rating)
	case WeightAge:
		return age
	default:
		return float64(rating) * age
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
