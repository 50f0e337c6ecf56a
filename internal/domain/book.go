package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Book is a catalog entry. A stub carries only title and author and is
// tolerated everywhere a book id is referenced.
type Book struct {
	ID         int64     `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	Author     string    `json:"author" yaml:"author"`
	NormTitle  string    `json:"norm_title" yaml:"norm_title"`
	NormAuthor string    `json:"norm_author" yaml:"norm_author"`
	Genre      string    `json:"genre" yaml:"genre"`
	PageCount  *int      `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	ISBN       string    `json:"isbn" yaml:"isbn"`
	ExternalID string    `json:"external_id" yaml:"external_id"`
	Stub       bool      `json:"stub" yaml:"stub"`
	Features   Features  `json:"features" yaml:"features"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// Pages returns the page count and whether it is known.
func (b Book) Pages() (int, bool) {
	if b.PageCount == nil || *b.PageCount <= 0 {
		return 0, false
	}
	return *b.PageCount, true
}

// Mood is the four-axis mood vector attached by enrichment.
type Mood struct {
	Energy     Energy         `json:"energy" yaml:"energy" toml:"energy"`
	Pacing     Pacing         `json:"pacing" yaml:"pacing" toml:"pacing"`
	Tone       Tone           `json:"tone" yaml:"tone" toml:"tone"`
	Complexity MoodComplexity `json:"complexity" yaml:"complexity" toml:"complexity"`
}

// Features holds derived enrichment data. Every field has an explicit
// unknown state: nil pointers, StyleUnknown, StructureUnknown, and
// ThemesKnown=false. Features are replaced as a whole, never field by field.
type Features struct {
	Complexity      *int               `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Themes          []string           `json:"themes,omitempty" yaml:"themes,omitempty"`
	ThemesKnown     bool               `json:"themes_known" yaml:"themes_known"`
	Style           WritingStyle       `json:"style" yaml:"style"`
	Structure       NarrativeStructure `json:"structure" yaml:"structure"`
	CharacterVsPlot *float64           `json:"character_vs_plot,omitempty" yaml:"character_vs_plot,omitempty"`
	Mood            *Mood              `json:"mood,omitempty" yaml:"mood,omitempty"`
	Confidence      float64            `json:"confidence" yaml:"confidence"`
}

// IsUnknown reports whether no feature at all is known.
func (f Features) IsUnknown() bool {
	return f.Complexity == nil && !f.ThemesKnown && !f.Style.IsKnown() &&
		f.Structure == StructureUnknown && f.CharacterVsPlot == nil && f.Mood == nil
}

// ComplexityValue returns the complexity level and whether it is known.
func (f Features) ComplexityValue() (int, bool) {
	if f.Complexity == nil {
		return 0, false
	}
	return *f.Complexity, true
}

// CVP returns the character-vs-plot score and whether it is known.
func (f Features) CVP() (float64, bool) {
	if f.CharacterVsPlot == nil {
		return 0, false
	}
	return *f.CharacterVsPlot, true
}

// HasTheme reports whether theme is one of the book's known themes.
func (f Features) HasTheme(theme string) bool {
	if !f.ThemesKnown {
		return false
	}
	for _, t := range f.Themes {
		if t == theme {
			return true
		}
	}
	return false
}

// Normalized returns a copy with themes trimmed, lowercased, deduplicated
// and sorted so equal feature sets compare and serialize identically.
func (f Features) Normalized() Features {
	out := f
	if !f.ThemesKnown {
		out.Themes = nil
		return out
	}
	seen := make(map[string]struct{}, len(f.Themes))
	themes := make([]string, 0, len(f.Themes))
	for _, theme := range f.Themes {
		t := strings.ToLower(strings.TrimSpace(theme))
		t = strings.ReplaceAll(t, " ", "_")
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		themes = append(themes, t)
	}
	sort.Strings(themes)
	out.Themes = themes
	return out
}

// Validate checks the feature ranges.
func (f Features) Validate() error {
	var errs []FieldError
	if f.Complexity != nil && (*f.Complexity < 1 || *f.Complexity > 10) {
		errs = append(errs, FieldError{Field: "complexity", Message: fmt.Sprintf("must be in 1..10 (got %d)", *f.Complexity)})
	}
	if f.CharacterVsPlot != nil && (*f.CharacterVsPlot < -1 || *f.CharacterVsPlot > 1) {
		errs = append(errs, FieldError{Field: "character_vs_plot", Message: fmt.Sprintf("must be in [-1, 1] (got %v)", *f.CharacterVsPlot)})
	}
	if f.Style.IsKnown() && !f.Style.IsValid() {
		errs = append(errs, FieldError{Field: "style", Message: fmt.Sprintf("unknown writing style %q", f.Style)})
	}
	if f.Structure != StructureUnknown && !f.Structure.IsValid() {
		errs = append(errs, FieldError{Field: "structure", Message: fmt.Sprintf("unknown narrative structure %q", f.Structure)})
	}
	if f.Mood != nil {
		if !f.Mood.Energy.IsValid() || !f.Mood.Pacing.IsValid() || !f.Mood.Tone.IsValid() || !f.Mood.Complexity.IsValid() {
			errs = append(errs, FieldError{Field: "mood", Message: "mood axes must use the enumerated values"})
		}
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		errs = append(errs, FieldError{Field: "confidence", Message: "must be in [0, 1]"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }
