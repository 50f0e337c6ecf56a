// Package narrator turns a readiness breakdown into prose. The text is
// opaque to the engine: it is shown to the reader and never parsed.
package narrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
)

// Input is the structured record handed to a narrator.
type Input struct {
	Profile domain.Profile
	Book    domain.Book
	Result  domain.ScoreResult
}

// Narrator produces an explanation for one scored book.
type Narrator interface {
	Narrate(ctx context.Context, in Input) (string, error)
}

// Noop never says anything.
type Noop struct{}

// Narrate returns the empty string.
func (Noop) Narrate(context.Context, Input) (string, error) { return "", nil }

// LLM narrates through a langchaingo chat model.
type LLM struct {
	llm       llms.Model
	modelName string
}

// NewLLM wraps an existing model.
func NewLLM(model llms.Model, modelName string) *LLM {
	return &LLM{llm: model, modelName: modelName}
}

// New builds the narrator selected by cfg.
func New(cfg *config.Config) (Narrator, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Narrator.Provider {
	case "", "none":
		return Noop{}, nil

	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Narrator.Model)}
		if cfg.Narrator.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.Narrator.BaseURL))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case "openai":
		token := cfg.Narrator.APIKey
		if token == "" {
			// OpenAI-compatible local servers accept any token.
			token = "local"
		}
		opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Narrator.Model)}
		if cfg.Narrator.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Narrator.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported narrator provider: %s", cfg.Narrator.Provider)
	}
	return NewLLM(model, cfg.Narrator.Model), nil
}

// Model returns the model name.
func (n *LLM) Model() string { return n.modelName }

const systemPrompt = `You explain to a reader whether a book suits them right now.
You receive their reading profile, the book, and a readiness breakdown with gaps and strengths.
Write two or three short sentences in the second person. Mention the strongest reason and, if
there are gaps, what would make the book easier. Do not invent facts that are not in the record.`

// Narrate asks the model for a short explanation.
func (n *LLM) Narrate(ctx context.Context, in Input) (string, error) {
	record, err := PromptRecord(in)
	if err != nil {
		return "", err
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, "Readiness record:\n"+record),
	}
	response, err := n.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate explanation: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}

type promptBook struct {
	Title      string   `json:"title"`
	Author     string   `json:"author,omitempty"`
	Pages      int      `json:"pages,omitempty"`
	Complexity *int     `json:"complexity,omitempty"`
	Themes     []string `json:"themes,omitempty"`
	Style      string   `json:"style,omitempty"`
}

type promptProfile struct {
	ComplexityComfort *float64 `json:"complexity_comfort,omitempty"`
	FavoriteThemes    []string `json:"favorite_themes,omitempty"`
	CompletionRate    *float64 `json:"completion_rate,omitempty"`
	LengthTolerance   float64  `json:"length_tolerance_pages,omitempty"`
	BooksLogged       int      `json:"books_logged"`
}

type promptRecord struct {
	Profile promptProfile      `json:"profile"`
	Book    promptBook         `json:"book"`
	Result  domain.ScoreResult `json:"readiness"`
}

// PromptRecord renders in as the JSON document sent to the model.
func PromptRecord(in Input) (string, error) {
	pages, _ := in.Book.Pages()
	rec := promptRecord{
		Profile: promptProfile{
			ComplexityComfort: in.Profile.ComplexityComfort,
			FavoriteThemes:    in.Profile.TopThemes(5),
			CompletionRate:    in.Profile.CompletionRate,
			LengthTolerance:   in.Profile.LengthToleranceSmoothed,
			BooksLogged:       in.Profile.EventCount,
		},
		Book: promptBook{
			Title:      in.Book.Title,
			Author:     in.Book.Author,
			Pages:      pages,
			Complexity: in.Book.Features.Complexity,
			Themes:     in.Book.Features.Themes,
			Style:      string(in.Book.Features.Style),
		},
		Result: in.Result,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt record: %w", err)
	}
	return string(data), nil
}

// Explain runs n under timeout and recovers every failure to the empty
// string. A nil narrator is treated as Noop.
func Explain(ctx context.Context, n Narrator, in Input, timeout time.Duration, logger *slog.Logger) string {
	if n == nil {
		return ""
	}
	if _, ok := n.(Noop); ok {
		return ""
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := n.Narrate(callCtx, in)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		logging.WarnWithContext(logger, "narrator unavailable; explanation omitted", string(domain.KindExternalUnavailable),
			logging.Int64(logging.FieldBookID, in.Book.ID),
			logging.String(logging.FieldErrorHint, "check narrator.provider and narrator.base_url"),
			logging.String(logging.FieldImpact, "score returned without explanation"),
			logging.Error(err),
		)
		return ""
	}
	return text
}
