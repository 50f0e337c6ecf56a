package domain

import (
	"fmt"
	"time"
)

// CompletionEvent is one entry of the reading history. The ordered sequence
// of events is the single source of truth for the profile.
type CompletionEvent struct {
	ID        int64            `json:"id" yaml:"id"`
	BookID    int64            `json:"book_id" yaml:"book_id"`
	At        time.Time        `json:"at" yaml:"at"`
	Status    CompletionStatus `json:"status" yaml:"status"`
	Rating    *int             `json:"rating,omitempty" yaml:"rating,omitempty"`
	PagesRead *int             `json:"pages_read,omitempty" yaml:"pages_read,omitempty"`
}

// RatingValue returns the rating and whether it is present.
func (e CompletionEvent) RatingValue() (int, bool) {
	if e.Rating == nil {
		return 0, false
	}
	return *e.Rating, true
}

// Validate checks status and rating ranges.
func (e CompletionEvent) Validate() error {
	var errs []FieldError
	if e.BookID <= 0 {
		errs = append(errs, FieldError{Field: "book_id", Message: "required"})
	}
	if !e.Status.IsValid() {
		errs = append(errs, FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", e.Status)})
	}
	if e.Rating != nil && (*e.Rating < 1 || *e.Rating > 5) {
		errs = append(errs, FieldError{Field: "rating", Message: fmt.Sprintf("must be in 1..5 (got %d)", *e.Rating)})
	}
	if e.PagesRead != nil && *e.PagesRead < 0 {
		errs = append(errs, FieldError{Field: "pages_read", Message: "must not be negative"})
	}
	if e.At.IsZero() {
		errs = append(errs, FieldError{Field: "timestamp", Message: "required"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// HistoryEntry pairs an event with the features of its book as they were
// when the entry was read.
type HistoryEntry struct {
	Event    CompletionEvent
	Pages    *int
	Features Features
}
