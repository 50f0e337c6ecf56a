package testsupport

import (
	"fmt"
	"time"

	"shelfmind/internal/domain"
)

// BookOption customizes a test book.
type BookOption func(*domain.Book)

// NewBook builds a non-stub book with known features. Unset features stay
// unknown.
func NewBook(title string, opts ...BookOption) domain.Book {
	book := domain.Book{Title: title, Author: fmt.Sprintf("Author of %s", title)}
	for _, opt := range opts {
		opt(&book)
	}
	return book
}

// Complexity sets the complexity level.
func Complexity(level int) BookOption {
	return func(b *domain.Book) { b.Features.Complexity = domain.IntPtr(level) }
}

// Pages sets the page count.
func Pages(n int) BookOption {
	return func(b *domain.Book) { b.PageCount = domain.IntPtr(n) }
}

// Themes sets a known theme set.
func Themes(themes ...string) BookOption {
	return func(b *domain.Book) {
		b.Features.Themes = append([]string{}, themes...)
		b.Features.ThemesKnown = true
	}
}

// Style sets the writing style.
func Style(style domain.WritingStyle) BookOption {
	return func(b *domain.Book) { b.Features.Style = style }
}

// CVP sets the character-vs-plot score.
func CVP(v float64) BookOption {
	return func(b *domain.Book) { b.Features.CharacterVsPlot = domain.FloatPtr(v) }
}

// Pacing sets a mood vector with the given pacing.
func Pacing(p domain.Pacing) BookOption {
	return func(b *domain.Book) {
		b.Features.Mood = &domain.Mood{
			Energy:     domain.EnergyMedium,
			Pacing:     p,
			Tone:       domain.ToneNeutral,
			Complexity: domain.MoodComplexityModerate,
		}
	}
}

// Author overrides the generated author.
func Author(name string) BookOption {
	return func(b *domain.Book) { b.Author = name }
}

// Stub marks the book as an inert title/author stub.
func Stub() BookOption {
	return func(b *domain.Book) { b.Stub = true }
}

// Completed builds a completed event with a rating.
func Completed(bookID int64, rating int, at time.Time) domain.CompletionEvent {
	return domain.CompletionEvent{BookID: bookID, At: at, Status: domain.CompletionCompleted, Rating: domain.IntPtr(rating)}
}

// DNF builds a did-not-finish event.
func DNF(bookID int64, pagesRead int, at time.Time) domain.CompletionEvent {
	return domain.CompletionEvent{BookID: bookID, At: at, Status: domain.CompletionDNF, PagesRead: domain.IntPtr(pagesRead)}
}
