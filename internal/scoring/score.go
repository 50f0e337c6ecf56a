// Package scoring computes readiness scores. Everything here is pure.
package scoring

import (
	"math"
	"sort"

	"shelfmind/internal/domain"
)

const (
	neutralFactor         = 60
	defaultCompletionRate = 0.8
	stylePenalty          = 15
	lowAffinity           = 0.4
	cvpBonus              = 10
	cvpMinMagnitude       = 0.3
	maxNewThemes          = 3
)

// Score rates how ready the reader described by p is to enjoy book now.
// Unknown features fall back to neutral values.
func Score(book domain.Book, p domain.Profile, opts Options) domain.ScoreResult {
	f := book.Features.Normalized()
	var (
		tags   tagger
		gap    float64
		factor domain.FactorBreakdown
	)

	complexity, complexityKnown := f.ComplexityValue()
	if complexityKnown {
		gap = float64(complexity) - p.Comfort()
		factor.ComplexityMatch = complexityMatch(gap)
		if factor.ComplexityMatch < opts.GapThreshold {
			tags.gap(domain.GapComplexity, 100-factor.ComplexityMatch)
		}
		if factor.ComplexityMatch >= opts.StrengthThreshold {
			tags.strength(domain.StrengthComplexityMatch)
		}
	} else {
		factor.ComplexityMatch = neutralFactor
	}

	factor.InterestAlignment = interestAlignment(f, p, opts.TopThemes)
	if f.ThemesKnown && len(f.Themes) > 0 {
		if factor.InterestAlignment < opts.GapThreshold {
			tags.gap(domain.GapThemeMismatch, 100-factor.InterestAlignment)
		}
		if factor.InterestAlignment >= opts.StrengthThreshold {
			tags.strength(domain.StrengthThemeOverlap)
		}
	}

	rate := p.CompletionRateOr(defaultCompletionRate)
	likelihood := roundInt(100 * rate)
	if p.CompletionRate != nil {
		if likelihood < opts.GapThreshold {
			tags.gap(domain.GapLowCompletionRate, 100-likelihood)
		}
		if likelihood >= opts.StrengthThreshold {
			tags.strength(domain.StrengthHighHistoricalCompletion)
		}
	}
	pages, pagesKnown := book.Pages()
	tolerance, toleranceKnown := p.LengthTolerance()
	if pagesKnown && toleranceKnown {
		if float64(pages) > tolerance {
			penalty := max(0, roundInt(100*(float64(pages)-tolerance)/tolerance))
			likelihood -= penalty
			tags.gap(domain.GapLength, penalty)
		} else {
			tags.strength(domain.StrengthLengthFit)
		}
	}
	affinity, affinityKnown := p.Affinity(f.Style)
	if f.Style.IsKnown() && len(p.StyleAffinity) > 0 && (!affinityKnown || affinity < lowAffinity) {
		likelihood -= stylePenalty
		tags.gap(domain.GapStyleUnfamiliar, stylePenalty)
	}
	if affinityKnown && roundInt(100*affinity) >= opts.StrengthThreshold {
		tags.strength(domain.StrengthStyleMatch)
	}
	factor.CompletionLikelihood = clampFactor(likelihood)

	styleScore := float64(neutralFactor)
	if affinityKnown {
		styleScore = 100 * affinity
	}
	factor.EnjoymentPotential = clampFactor(roundInt(0.5*styleScore + 0.5*float64(factor.InterestAlignment)))

	growth := 50 + 20*gap + 10*float64(newThemeCount(f, p))
	factor.GrowthOpportunity = clampFactor(roundInt(growth))

	score := clampFactor(roundInt(
		opts.Weights[0]*float64(factor.ComplexityMatch) +
			opts.Weights[1]*float64(factor.InterestAlignment) +
			opts.Weights[2]*float64(factor.CompletionLikelihood) +
			opts.Weights[3]*float64(factor.EnjoymentPotential) +
			opts.Weights[4]*float64(factor.GrowthOpportunity)))

	return domain.ScoreResult{
		Score:          score,
		Recommendation: Classify(score, opts),
		Factors:        factor,
		Gaps:           tags.gaps(),
		Strengths:      tags.strengths(),
	}
}

// Classify maps a score onto a recommendation band.
func Classify(score int, opts Options) domain.Recommendation {
	switch {
	case score >= opts.ReadNow:
		return domain.RecommendReadNow
	case score >= opts.MaybeLater:
		return domain.RecommendMaybeLater
	case score >= opts.NotYet:
		return domain.RecommendNotYet
	default:
		return domain.RecommendDifferentDirection
	}
}

// ComplexityGap is book complexity minus the profile's comfort; zero when
// the complexity is unknown.
func ComplexityGap(f domain.Features, p domain.Profile) float64 {
	c, ok := f.ComplexityValue()
	if !ok {
		return 0
	}
	return float64(c) - p.Comfort()
}

func complexityMatch(gap float64) int {
	switch {
	case gap <= 0:
		return clampFactor(100 - roundInt(10*math.Abs(gap)))
	case gap <= 1:
		return 80 - roundInt(10*gap)
	case gap <= 2:
		return 60 - roundInt(20*(gap-1))
	default:
		return max(0, 40-roundInt(15*(gap-2)))
	}
}

func interestAlignment(f domain.Features, p domain.Profile, topN int) int {
	base := neutralFactor
	if f.ThemesKnown {
		top := p.TopThemes(topN)
		overlap := 0
		for _, theme := range f.Themes {
			for _, fav := range top {
				if theme == fav {
					overlap++
					break
				}
			}
		}
		base = min(100, 40+15*overlap)
	}
	bookCVP, bookKnown := f.CVP()
	if bookKnown && p.CharacterVsPlot != nil {
		readerCVP := *p.CharacterVsPlot
		if sign(bookCVP) == sign(readerCVP) && sign(bookCVP) != 0 &&
			math.Abs(bookCVP) >= cvpMinMagnitude && math.Abs(readerCVP) >= cvpMinMagnitude {
			base += cvpBonus
		}
	}
	return clampFactor(base)
}

func newThemeCount(f domain.Features, p domain.Profile) int {
	if !f.ThemesKnown {
		return 0
	}
	n := 0
	for _, theme := range f.Themes {
		if !p.IsFavoriteTheme(theme) {
			n++
		}
	}
	return min(n, maxNewThemes)
}

type rankedGap struct {
	tag     domain.GapTag
	deficit int
	order   int
}

type tagger struct {
	gapList      []rankedGap
	strengthList []domain.StrengthTag
}

func (t *tagger) gap(tag domain.GapTag, deficit int) {
	t.gapList = append(t.gapList, rankedGap{tag: tag, deficit: deficit, order: gapOrder(tag)})
}

func (t *tagger) strength(tag domain.StrengthTag) {
	t.strengthList = append(t.strengthList, tag)
}

// gaps returns gap tags ordered by descending deficit, then by the
// canonical tag order.
func (t *tagger) gaps() []domain.GapTag {
	ranked := append([]rankedGap{}, t.gapList...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].deficit != ranked[j].deficit {
			return ranked[i].deficit > ranked[j].deficit
		}
		return ranked[i].order < ranked[j].order
	})
	out := make([]domain.GapTag, len(ranked))
	for i, g := range ranked {
		out[i] = g.tag
	}
	return out
}

func (t *tagger) strengths() []domain.StrengthTag {
	out := make([]domain.StrengthTag, len(t.strengthList))
	copy(out, t.strengthList)
	return out
}

func gapOrder(tag domain.GapTag) int {
	for i, candidate := range domain.AllGapTags() {
		if candidate == tag {
			return i
		}
	}
	return len(domain.AllGapTags())
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func roundInt(v float64) int {
	return int(math.Round(v))
}

func clampFactor(v int) int {
	return max(0, min(100, v))
}
