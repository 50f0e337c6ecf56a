package domain

import "time"

// SM2State is the spaced-repetition triple.
type SM2State struct {
	Repetitions  int `json:"repetitions" yaml:"repetitions"`
	IntervalDays int `json:"interval_days" yaml:"interval_days"`
	EaseScaled   int `json:"ease_scaled" yaml:"ease_scaled"`
}

// VocabularyItem is a word under spaced-repetition review.
type VocabularyItem struct {
	ID           int64      `json:"id" yaml:"id"`
	Word         string     `json:"word" yaml:"word"`
	Definition   string     `json:"definition" yaml:"definition"`
	SourceBookID *int64     `json:"source_book_id,omitempty" yaml:"source_book_id,omitempty"`
	State        SM2State   `json:"state" yaml:"state"`
	NextDue      time.Time  `json:"next_due" yaml:"next_due"`
	Successes    int        `json:"successes" yaml:"successes"`
	Failures     int        `json:"failures" yaml:"failures"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty" yaml:"last_reviewed,omitempty"`
	Version      int64      `json:"version" yaml:"version"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
}

// VocabularyStats summarizes the vocabulary store.
type VocabularyStats struct {
	Total     int `json:"total" yaml:"total"`
	Due       int `json:"due" yaml:"due"`
	Learned   int `json:"learned" yaml:"learned"`
	Successes int `json:"successes" yaml:"successes"`
	Failures  int `json:"failures" yaml:"failures"`
}
