package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/textutil"
)

// Query identifies the book to look up. Stub books carry only title and
// author.
type Query struct {
	ISBN   string
	Title  string
	Author string
	Stub   bool
}

// QueryFor builds the lookup for book.
func QueryFor(book domain.Book) Query {
	return Query{
		ISBN:   strings.TrimSpace(book.ISBN),
		Title:  book.Title,
		Author: book.Author,
		Stub:   book.Stub,
	}
}

// CacheKey is the catalog_cache key of q. ISBN wins over the natural key.
func (q Query) CacheKey() string {
	if isbn := normalizeISBN(q.ISBN); isbn != "" {
		return "isbn:" + isbn
	}
	return "title:" + textutil.NormalizeTitle(q.Title) + "|" + textutil.NormalizeAuthor(q.Author)
}

func normalizeISBN(isbn string) string {
	var b strings.Builder
	for _, r := range isbn {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// Record is the catalog wire format shared by the HTTP and file providers.
// A nil Themes slice means the themes are unknown.
type Record struct {
	Title           string       `json:"title,omitempty" toml:"title"`
	Author          string       `json:"author,omitempty" toml:"author"`
	ISBN            string       `json:"isbn,omitempty" toml:"isbn"`
	PageCount       int          `json:"page_count,omitempty" toml:"page_count"`
	Complexity      *int         `json:"complexity,omitempty" toml:"complexity"`
	Themes          []string     `json:"themes" toml:"themes"`
	Style           string       `json:"style,omitempty" toml:"style"`
	Structure       string       `json:"structure,omitempty" toml:"structure"`
	CharacterVsPlot *float64     `json:"character_vs_plot,omitempty" toml:"character_vs_plot"`
	Mood            *domain.Mood `json:"mood,omitempty" toml:"mood"`
	Confidence      float64      `json:"confidence" toml:"confidence"`
}

// Features converts the record into the domain feature set.
func (r Record) Features() domain.Features {
	f := domain.Features{
		Complexity:      r.Complexity,
		Style:           domain.WritingStyle(strings.ToLower(strings.TrimSpace(r.Style))),
		Structure:       domain.NarrativeStructure(strings.ToLower(strings.TrimSpace(r.Structure))),
		CharacterVsPlot: r.CharacterVsPlot,
		Mood:            r.Mood,
		Confidence:      r.Confidence,
	}
	if r.Themes != nil {
		f.Themes = append([]string{}, r.Themes...)
		f.ThemesKnown = true
	}
	return f.Normalized()
}

// Result is a provider answer. Known is false when the provider has no
// data for the query.
type Result struct {
	Record Record
	Known  bool
}

// Unknown is the answer for books the provider does not know.
var Unknown = Result{}

// Provider looks up catalog records. Implementations return Unknown with a
// nil error when the book is not in the catalog; errors mean the provider
// could not answer.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, q Query) (Result, error)
}

func encodeRecord(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode catalog record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode catalog record: %w", err)
	}
	return r, nil
}

// NewProvider builds the provider selected by cfg. It returns nil when
// enrichment is disabled.
func NewProvider(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Catalog.Provider {
	case "", "none":
		return nil, nil
	case "http":
		return NewHTTPProvider(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, WithTimeout(cfg.CatalogTimeout()))
	case "file":
		return LoadFileProvider(cfg.Catalog.FilePath)
	default:
		return nil, fmt.Errorf("unknown catalog provider %q", cfg.Catalog.Provider)
	}
}
