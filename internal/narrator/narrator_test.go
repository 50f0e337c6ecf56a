package narrator_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/narrator"
)

type fakeModel struct {
	reply    string
	err      error
	block    bool
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func sampleInput() narrator.Input {
	comfort := 6.5
	return narrator.Input{
		Profile: domain.Profile{
			EventCount:        12,
			ComplexityComfort: &comfort,
			FavoriteThemes:    []domain.ThemeStat{{Theme: "exile", Count: 4, MeanRating: 4.5}},
		},
		Book: domain.Book{
			ID:        7,
			Title:     "The Dispossessed",
			Author:    "Ursula K. Le Guin",
			PageCount: domain.IntPtr(387),
			Features:  domain.Features{Complexity: domain.IntPtr(8), Themes: []string{"exile", "politics"}, ThemesKnown: true},
		},
		Result: domain.ScoreResult{
			Score:          68,
			Recommendation: domain.RecommendMaybeLater,
			Gaps:           []domain.GapTag{domain.GapComplexity},
			Strengths:      []domain.StrengthTag{domain.StrengthThemeOverlap},
		},
	}
}

func TestLLMNarrateSendsStructuredRecord(t *testing.T) {
	model := &fakeModel{reply: "  You are close; one denser novel first.  "}
	n := narrator.NewLLM(model, "test-model")

	text, err := n.Narrate(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "You are close; one denser novel first.", text)
	assert.Equal(t, "test-model", n.Model())

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	human, ok := model.messages[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, human.Text, `"title": "The Dispossessed"`)
	assert.Contains(t, human.Text, `"complexity_gap"`)
	assert.Contains(t, human.Text, `"exile"`)
}

func TestExplainRecoversFailures(t *testing.T) {
	in := sampleInput()

	failing := narrator.NewLLM(&fakeModel{err: errors.New("503 upstream")}, "m")
	assert.Equal(t, "", narrator.Explain(context.Background(), failing, in, time.Second, nil))

	slow := narrator.NewLLM(&fakeModel{block: true}, "m")
	start := time.Now()
	assert.Equal(t, "", narrator.Explain(context.Background(), slow, in, 20*time.Millisecond, nil))
	assert.Less(t, time.Since(start), 5*time.Second)

	ok := narrator.NewLLM(&fakeModel{reply: "Read it now."}, "m")
	assert.Equal(t, "Read it now.", narrator.Explain(context.Background(), ok, in, time.Second, nil))

	assert.Equal(t, "", narrator.Explain(context.Background(), nil, in, time.Second, nil))
	assert.Equal(t, "", narrator.Explain(context.Background(), narrator.Noop{}, in, time.Second, nil))
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := config.Default()
	n, err := narrator.New(&cfg)
	require.NoError(t, err)
	assert.IsType(t, narrator.Noop{}, n)

	cfg.Narrator.Provider = "carrier-pigeon"
	_, err = narrator.New(&cfg)
	require.Error(t, err)
}

func TestPromptRecordOmitsUnknownAxes(t *testing.T) {
	in := sampleInput()
	in.Profile.ComplexityComfort = nil
	in.Book.Features = domain.Features{}
	record, err := narrator.PromptRecord(in)
	require.NoError(t, err)
	assert.False(t, strings.Contains(record, "complexity_comfort"))
	assert.True(t, strings.Contains(record, `"books_logged": 12`))
}
