package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmind/internal/domain"
	"shelfmind/internal/scoring"
	"shelfmind/internal/testsupport"
)

func scenarioProfile() domain.Profile {
	return domain.Profile{
		ComplexityComfort:       domain.FloatPtr(6.5),
		CharacterVsPlot:         domain.FloatPtr(0.5),
		CompletionRate:          domain.FloatPtr(1.0),
		LengthToleranceRaw:      650,
		LengthToleranceSmoothed: 650,
		FavoriteThemes: []domain.ThemeStat{
			{Theme: "coming_of_age", Count: 5, MeanRating: 4.8},
			{Theme: "identity", Count: 4, MeanRating: 4.5},
			{Theme: "family", Count: 6, MeanRating: 4.2},
		},
		StyleAffinity: map[domain.WritingStyle]float64{domain.StyleLyrical: 0.81},
	}
}

func TestScoreReadNowPath(t *testing.T) {
	book := testsupport.NewBook("Portal Years",
		testsupport.Complexity(6),
		testsupport.Pages(384),
		testsupport.Themes("coming_of_age", "identity", "family", "portal"),
		testsupport.Style(domain.StyleLyrical),
		testsupport.CVP(0.6),
	)

	res := scoring.Score(book, scenarioProfile(), scoring.DefaultOptions())

	assert.Equal(t, domain.FactorBreakdown{
		ComplexityMatch:      95,
		InterestAlignment:    95,
		CompletionLikelihood: 100,
		EnjoymentPotential:   88,
		GrowthOpportunity:    50,
	}, res.Factors)
	assert.GreaterOrEqual(t, res.Score, 90)
	assert.Equal(t, domain.RecommendReadNow, res.Recommendation)
	assert.True(t, res.HasStrength(domain.StrengthStyleMatch))
	assert.True(t, res.HasStrength(domain.StrengthThemeOverlap))
	assert.Empty(t, res.Gaps)
}

func TestScoreNotYetPath(t *testing.T) {
	book := testsupport.NewBook("Infinite Pages",
		testsupport.Complexity(9),
		testsupport.Pages(1079),
		testsupport.Themes("postmodern"),
		testsupport.Style(domain.StyleDense),
	)

	res := scoring.Score(book, scenarioProfile(), scoring.DefaultOptions())

	assert.Equal(t, 42, res.Score)
	assert.LessOrEqual(t, res.Score, 45)
	assert.Equal(t, domain.RecommendNotYet, res.Recommendation)
	for _, tag := range []domain.GapTag{domain.GapComplexity, domain.GapLength, domain.GapStyleUnfamiliar} {
		assert.True(t, res.HasGap(tag), "missing gap %s in %v", tag, res.Gaps)
	}
	require.NotEmpty(t, res.Gaps)
	assert.Equal(t, domain.GapComplexity, res.Gaps[0], "largest deficit first")
}

func TestScoreEmptyProfileBoundaries(t *testing.T) {
	opts := scoring.DefaultOptions()

	res := scoring.Score(testsupport.NewBook("Mid", testsupport.Complexity(5)), domain.Profile{}, opts)
	assert.Equal(t, 100, res.Factors.ComplexityMatch)
	assert.Equal(t, 80, res.Factors.CompletionLikelihood)

	unknown := scoring.Score(testsupport.NewBook("Blank"), domain.Profile{}, opts)
	assert.Equal(t, domain.FactorBreakdown{
		ComplexityMatch:      60,
		InterestAlignment:    60,
		CompletionLikelihood: 80,
		EnjoymentPotential:   60,
		GrowthOpportunity:    50,
	}, unknown.Factors)
	assert.Equal(t, 63, unknown.Score)
	assert.Equal(t, domain.RecommendMaybeLater, unknown.Recommendation)
	assert.Empty(t, unknown.Gaps)
}

func TestComplexityMatchPiecewise(t *testing.T) {
	opts := scoring.DefaultOptions()
	profile := domain.Profile{ComplexityComfort: domain.FloatPtr(5)}
	cases := []struct {
		complexity int
		want       int
	}{
		{1, 60},
		{5, 100},
		{6, 70},
		{7, 40},
		{8, 25},
		{10, 0},
	}
	for _, tc := range cases {
		res := scoring.Score(testsupport.NewBook("C", testsupport.Complexity(tc.complexity)), profile, opts)
		assert.Equal(t, tc.want, res.Factors.ComplexityMatch, "complexity %d", tc.complexity)
	}
}

func TestCharacterVsPlotBonusNeedsSameSign(t *testing.T) {
	opts := scoring.DefaultOptions()
	profile := domain.Profile{CharacterVsPlot: domain.FloatPtr(-0.4)}

	same := scoring.Score(testsupport.NewBook("Plotty", testsupport.CVP(-0.5), testsupport.Themes()), profile, opts)
	opposite := scoring.Score(testsupport.NewBook("Character", testsupport.CVP(0.5), testsupport.Themes()), profile, opts)
	weak := scoring.Score(testsupport.NewBook("Weak", testsupport.CVP(-0.2), testsupport.Themes()), profile, opts)

	assert.Equal(t, 50, same.Factors.InterestAlignment)
	assert.Equal(t, 40, opposite.Factors.InterestAlignment)
	assert.Equal(t, 40, weak.Factors.InterestAlignment)
}

func TestClassifyIsTotal(t *testing.T) {
	opts := scoring.DefaultOptions()
	cases := map[int]domain.Recommendation{
		0:   domain.RecommendDifferentDirection,
		24:  domain.RecommendDifferentDirection,
		25:  domain.RecommendNotYet,
		49:  domain.RecommendNotYet,
		50:  domain.RecommendMaybeLater,
		74:  domain.RecommendMaybeLater,
		75:  domain.RecommendReadNow,
		100: domain.RecommendReadNow,
	}
	for score, want := range cases {
		assert.Equal(t, want, scoring.Classify(score, opts), "score %d", score)
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	opts := scoring.DefaultOptions()
	profile := domain.Profile{
		ComplexityComfort:       domain.FloatPtr(1),
		CompletionRate:          domain.FloatPtr(0.1),
		LengthToleranceSmoothed: 100,
		StyleAffinity:           map[domain.WritingStyle]float64{domain.StyleSparse: 0.1},
	}
	for c := 1; c <= 10; c++ {
		for _, pages := range []int{50, 400, 5000} {
			res := scoring.Score(testsupport.NewBook("R",
				testsupport.Complexity(c), testsupport.Pages(pages), testsupport.Style(domain.StyleSparse),
				testsupport.Themes("a", "b", "c", "d")), profile, opts)
			assert.GreaterOrEqual(t, res.Score, 0)
			assert.LessOrEqual(t, res.Score, 100)
			assert.True(t, res.HasGap(domain.GapLowCompletionRate))
		}
	}
}
