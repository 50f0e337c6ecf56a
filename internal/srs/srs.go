// Package srs schedules vocabulary reviews with an integer SM-2 variant.
package srs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"shelfmind/internal/clock"
	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/store"
)

// LearnedRepetitions is the streak after which an item counts as learned.
const LearnedRepetitions = 3

// Params are the SM-2 constants. Ease values are scaled by 1000.
type Params struct {
	EaseFloor   int
	EaseStep    int
	InitialEase int
	EaseCeiling int
	Location    *time.Location
}

// ParamsFromConfig extracts SM-2 parameters from cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		EaseFloor:   cfg.SM2.EaseFloorScaled,
		EaseStep:    cfg.SM2.EaseDeltaPerQualityStepScaled,
		InitialEase: cfg.SM2.InitialEaseScaled,
		EaseCeiling: cfg.SM2.EaseCeilingScaled,
		Location:    cfg.SM2Location(),
	}
}

// Initial is the state of a never-reviewed item.
func (p Params) Initial() domain.SM2State {
	return domain.SM2State{EaseScaled: p.InitialEase}
}

// Step applies one review of the given quality. The interval grows with the
// ease held before this review; the ease moves by at most one step either way
// and stays within [EaseFloor, EaseCeiling].
func Step(s domain.SM2State, quality int, p Params) (domain.SM2State, error) {
	if quality < 0 || quality > 5 {
		return s, domain.NewValidationError("quality", fmt.Sprintf("must be in 0..5 (got %d)", quality))
	}
	next := s
	if quality >= 3 {
		next.Repetitions++
		switch next.Repetitions {
		case 1:
			next.IntervalDays = 1
		case 2:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(s.IntervalDays) * float64(s.EaseScaled) / 1000))
		}
	} else {
		next.Repetitions = 0
		next.IntervalDays = 1
	}
	// One review moves ease by at most one step either way, so quality 2
	// from 2500 lands on 2220.
	delta := p.EaseStep - (5-quality)*p.EaseStep
	delta = max(-p.EaseStep, min(p.EaseStep, delta))
	ease := max(p.EaseFloor, s.EaseScaled+delta)
	if p.EaseCeiling > 0 {
		ease = min(p.EaseCeiling, ease)
	}
	next.EaseScaled = ease
	return next, nil
}

// NextDue is the calendar day, in the scheduling zone, interval days after
// the day containing now.
func NextDue(now time.Time, intervalDays int, loc *time.Location) time.Time {
	return clock.Day(now, loc).AddDate(0, 0, intervalDays)
}

// Scheduler owns the vocabulary review queue.
type Scheduler struct {
	store  *store.Store
	clock  clock.Clock
	params Params
	logger *slog.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(st *store.Store, clk clock.Clock, params Params, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: st, clock: clk, params: params, logger: logging.NewComponentLogger(logger, "srs")}
}

// Add stores a new word due today.
func (s *Scheduler) Add(ctx context.Context, word, definition string, sourceBookID *int64) (domain.VocabularyItem, error) {
	now := s.clock.Now()
	var item domain.VocabularyItem
	err := s.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		item, err = tx.InsertVocabulary(ctx, domain.VocabularyItem{
			Word:         strings.TrimSpace(word),
			Definition:   strings.TrimSpace(definition),
			SourceBookID: sourceBookID,
			State:        s.params.Initial(),
			NextDue:      NextDue(now, 0, s.params.Location),
			CreatedAt:    now,
		})
		return err
	})
	if err != nil {
		return domain.VocabularyItem{}, err
	}
	s.logger.Info("vocabulary item added",
		logging.Int64(logging.FieldVocabID, item.ID),
		logging.String("word", item.Word),
	)
	return item, nil
}

// Submit records a review. The read and the versioned write share one
// transaction; a concurrent review surfaces as domain.ErrConflict after the
// store's retry.
func (s *Scheduler) Submit(ctx context.Context, itemID int64, quality int) (domain.VocabularyItem, error) {
	var updated domain.VocabularyItem
	err := s.store.Write(ctx, func(tx *store.Tx) error {
		item, err := tx.GetVocabulary(ctx, itemID)
		if err != nil {
			return err
		}
		next, err := Step(item.State, quality, s.params)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		updated, err = tx.ScheduleReview(ctx, store.ReviewUpdate{
			ItemID:          item.ID,
			ExpectedVersion: item.Version,
			Quality:         quality,
			State:           next,
			NextDue:         NextDue(now, next.IntervalDays, s.params.Location),
			ReviewedAt:      now,
			Success:         quality >= 3,
		})
		return err
	})
	if err != nil {
		return domain.VocabularyItem{}, err
	}
	s.logger.Debug("review recorded",
		logging.Int64(logging.FieldVocabID, updated.ID),
		logging.Int("quality", quality),
		logging.Int("interval_days", updated.State.IntervalDays),
		logging.Int("ease_scaled", updated.State.EaseScaled),
	)
	return updated, nil
}

// Due returns items due today, earliest first.
func (s *Scheduler) Due(ctx context.Context, limit int) ([]domain.VocabularyItem, error) {
	if limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	var items []domain.VocabularyItem
	err := s.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		items, err = tx.PopDueReviews(ctx, s.clock.Now(), uint64(limit))
		return err
	})
	return items, err
}

// Stats summarizes the vocabulary store as of today.
func (s *Scheduler) Stats(ctx context.Context) (domain.VocabularyStats, error) {
	var stats domain.VocabularyStats
	err := s.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		stats, err = tx.VocabularyStats(ctx, s.clock.Now(), LearnedRepetitions)
		return err
	})
	return stats, err
}
