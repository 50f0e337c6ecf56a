package engine

import (
	"context"

	"shelfmind/internal/domain"
)

// AddVocabulary schedules a new word for review today.
func (e *Engine) AddVocabulary(ctx context.Context, word, definition string, sourceBookID *int64) (domain.VocabularyItem, error) {
	return e.reviews.Add(ctx, word, definition, sourceBookID)
}

// SubmitReview grades a review with an SM-2 quality in 0..5.
func (e *Engine) SubmitReview(ctx context.Context, itemID int64, quality int) (domain.VocabularyItem, error) {
	return e.reviews.Submit(ctx, itemID, quality)
}

// DueReviews returns items due today, earliest first. limit 0 means all.
func (e *Engine) DueReviews(ctx context.Context, limit int) ([]domain.VocabularyItem, error) {
	return e.reviews.Due(ctx, limit)
}

// VocabularyStats summarizes the review deck.
func (e *Engine) VocabularyStats(ctx context.Context) (domain.VocabularyStats, error) {
	return e.reviews.Stats(ctx)
}
