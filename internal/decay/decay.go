// Package decay lowers the mastery of entities the reader has not touched
// for a while and records the reader's own touches.
package decay

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"shelfmind/internal/clock"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/store"
)

// BookCategory is the category given to mastery entities created from
// completions.
const BookCategory = "books"

// Next returns the decayed value of old under rule and whether it changed.
func Next(old int, rule domain.DecayRule) (int, bool) {
	decayed := int(math.Round(float64(old) * (1 - rule.Fraction)))
	decayed = max(rule.Floor, decayed)
	if decayed >= old {
		return old, false
	}
	return decayed, true
}

// Change is one decayed entity.
type Change struct {
	RuleID    int64  `json:"rule_id" yaml:"rule_id"`
	EntityKey string `json:"entity_key" yaml:"entity_key"`
	Old       int    `json:"old" yaml:"old"`
	New       int    `json:"new" yaml:"new"`
}

// Report summarizes one tick.
type Report struct {
	RunID   string   `json:"run_id" yaml:"run_id"`
	Rules   int      `json:"rules" yaml:"rules"`
	Changes []Change `json:"changes" yaml:"changes"`
	// Skipped counts candidates already decayed today or left unchanged by
	// their floor.
	Skipped int `json:"skipped" yaml:"skipped"`
	Failed  int `json:"failed" yaml:"failed"`
}

// Scheduler applies decay rules.
type Scheduler struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(st *store.Store, clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: st, clock: clk, logger: logging.NewComponentLogger(logger, "decay")}
}

// Tick applies every enabled rule once. An entity is decayed at most once
// per UTC day; each entity update is its own transaction.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	now := s.clock.Now()
	report := Report{RunID: uuid.NewString()}
	logger := s.logger.With(logging.String(logging.FieldRunID, report.RunID))

	var rules []domain.DecayRule
	if err := s.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		rules, err = tx.ListDecayRules(ctx, true)
		return err
	}); err != nil {
		return report, fmt.Errorf("list decay rules: %w", err)
	}
	report.Rules = len(rules)

	for _, rule := range rules {
		cutoff := now.Add(-time.Duration(rule.InactivityDays) * 24 * time.Hour)
		var candidates []domain.MasteryEntity
		if err := s.store.Read(ctx, func(tx *store.Tx) error {
			var err error
			candidates, err = tx.DecayCandidates(ctx, rule.Selector, cutoff)
			return err
		}); err != nil {
			return report, fmt.Errorf("decay candidates for rule %d: %w", rule.ID, err)
		}
		for _, entity := range candidates {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			change, applied, err := s.apply(ctx, rule, entity.Key, cutoff, now)
			if err != nil {
				report.Failed++
				logging.ErrorWithContext(logger, "decay failed for entity", "decay_entity_failed",
					logging.Int64(logging.FieldRuleID, rule.ID),
					logging.String(logging.FieldEntity, entity.Key),
					logging.Error(err),
				)
				continue
			}
			if !applied {
				report.Skipped++
				continue
			}
			report.Changes = append(report.Changes, change)
		}
	}

	logger.Info("decay tick complete",
		logging.Int("rules", report.Rules),
		logging.Int("decayed", len(report.Changes)),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Scheduler) apply(ctx context.Context, rule domain.DecayRule, key string, cutoff, now time.Time) (Change, bool, error) {
	var (
		change  Change
		applied bool
	)
	err := s.store.Write(ctx, func(tx *store.Tx) error {
		applied = false
		entity, err := tx.GetMasteryEntity(ctx, key)
		if err != nil {
			return err
		}
		if !entity.LastTouchedAt.Before(cutoff) {
			return nil
		}
		if entity.LastDecayAt != nil && clock.SameUTCDay(*entity.LastDecayAt, now) {
			return nil
		}
		next, ok := Next(entity.Mastery, rule)
		if !ok {
			return nil
		}
		ruleID := rule.ID
		if _, err := tx.AppendDecayAudit(ctx, domain.DecayAudit{
			EntityKey: key,
			At:        now,
			NewValue:  next,
			Cause:     domain.CauseDecayTick,
			Note:      rule.Selector.Canonical(),
			RuleID:    &ruleID,
		}); err != nil {
			return err
		}
		change = Change{RuleID: rule.ID, EntityKey: key, Old: entity.Mastery, New: next}
		applied = true
		return nil
	})
	return change, applied, err
}

// Touch records reader activity on key: it sets the mastery to value with a
// review or manual-edit cause, creating the entity when it does not exist.
func Touch(ctx context.Context, tx *store.Tx, key string, value int, cause domain.AuditCause, note string, now time.Time) (domain.MasteryEntity, error) {
	if !cause.IsTouch() {
		return domain.MasteryEntity{}, domain.NewValidationError("cause", fmt.Sprintf("%s is not reader activity", cause))
	}
	kind, _, err := domain.ParseEntityKey(key)
	if err != nil {
		return domain.MasteryEntity{}, err
	}
	if _, err := tx.GetMasteryEntity(ctx, key); err != nil {
		if domain.Kind(err) != domain.KindNotFound {
			return domain.MasteryEntity{}, err
		}
		category := ""
		if kind == domain.EntityBook {
			category = BookCategory
		}
		return tx.CreateMasteryEntity(ctx, domain.MasteryEntity{
			Key:           key,
			Kind:          kind,
			Category:      category,
			Mastery:       value,
			LastTouchedAt: now,
		}, cause, note)
	}
	if _, err := tx.AppendDecayAudit(ctx, domain.DecayAudit{
		EntityKey: key,
		At:        now,
		NewValue:  value,
		Cause:     cause,
		Note:      note,
	}); err != nil {
		return domain.MasteryEntity{}, err
	}
	return tx.GetMasteryEntity(ctx, key)
}

// TouchBook records a rated completion as a review of the book's entity.
func TouchBook(ctx context.Context, tx *store.Tx, bookID int64, rating int, now time.Time) (domain.MasteryEntity, error) {
	return Touch(ctx, tx, domain.BookEntityKey(bookID), rating*20, domain.CauseReview, "rated completion", now)
}
