// Package recompute re-scores open deferred targets, appends checkpoints
// under the rate limit and records became-ready notifications.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"shelfmind/internal/clock"
	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/profile"
	"shelfmind/internal/scoring"
	"shelfmind/internal/store"
	"shelfmind/internal/targets"
)

// Options holds recomputation policy.
type Options struct {
	MinInterval  time.Duration
	NotifyOnTick bool
}

// OptionsFromConfig extracts the recomputation policy from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinInterval:  cfg.MinCheckpointInterval(),
		NotifyOnTick: cfg.Recomputer.NotifyOnTick,
	}
}

// Recomputer runs readiness checks.
type Recomputer struct {
	store    *store.Store
	profiles *profile.Builder
	scorer   scoring.Options
	targets  *targets.Manager
	clock    clock.Clock
	opts     Options
	logger   *slog.Logger
}

// New constructs a Recomputer.
func New(st *store.Store, profiles *profile.Builder, scorer scoring.Options, manager *targets.Manager, clk clock.Clock, opts Options, logger *slog.Logger) *Recomputer {
	return &Recomputer{
		store:    st,
		profiles: profiles,
		scorer:   scorer,
		targets:  manager,
		clock:    clk,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "recompute"),
	}
}

// TargetChange summarizes what one run did to one target.
type TargetChange struct {
	TargetID   int64
	BookID     int64
	Score      int
	Checkpoint bool
	Transition targets.Transition
}

// Report summarizes one run.
type Report struct {
	RunID         string
	Trigger       string
	Profile       domain.Profile
	Evaluated     int
	Checkpoints   int
	Skipped       int
	Failed        int
	Changes       []TargetChange
	Notifications []domain.Notification
}

// Run refreshes the profile and re-scores every open target.
func (r *Recomputer) Run(ctx context.Context, trigger string) (Report, error) {
	var res profile.Result
	err := r.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		res, err = r.profiles.Refresh(ctx, tx, r.clock.Now())
		return err
	})
	if err != nil {
		return Report{}, fmt.Errorf("refresh profile: %w", err)
	}
	return r.RunWithProfile(ctx, trigger, res.Profile)
}

// RunWithProfile re-scores every open target against p. Each target is
// updated in its own transaction; a failure is logged and does not stop the
// others. Cancellation stops the run between targets.
func (r *Recomputer) RunWithProfile(ctx context.Context, trigger string, p domain.Profile) (Report, error) {
	report := Report{RunID: uuid.NewString(), Trigger: trigger, Profile: p}
	ctx = logging.WithTrigger(logging.WithRunID(ctx, report.RunID), trigger)
	logger := logging.WithContext(ctx, r.logger)

	var open []domain.DeferredTarget
	if err := r.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		open, err = tx.ListTargets(ctx, store.TargetFilter{OpenOnly: true})
		return err
	}); err != nil {
		return report, fmt.Errorf("list targets: %w", err)
	}

	for _, target := range open {
		if err := ctx.Err(); err != nil {
			logger.Info("readiness check interrupted",
				logging.Int("evaluated", report.Evaluated),
				logging.Int("remaining", len(open)-report.Evaluated-report.Failed),
			)
			return report, err
		}
		change, note, err := r.processTarget(ctx, target.ID, trigger, p, logger)
		if err != nil {
			if errors.Is(err, errTerminal) {
				report.Skipped++
				continue
			}
			report.Failed++
			logging.ErrorWithContext(logger, "readiness check failed for target", "recompute_target_failed",
				logging.Int64(logging.FieldTargetID, target.ID),
				logging.String(logging.FieldErrorHint, hintFor(err)),
				logging.Error(err),
			)
			continue
		}
		report.Evaluated++
		report.Changes = append(report.Changes, change)
		if change.Checkpoint {
			report.Checkpoints++
		}
		if note != nil {
			report.Notifications = append(report.Notifications, *note)
		}
	}

	logger.Info("readiness check complete",
		logging.Int("evaluated", report.Evaluated),
		logging.Int("checkpoints", report.Checkpoints),
		logging.Int("became_ready", len(report.Notifications)),
		logging.Int("failed", report.Failed),
	)
	return report, nil
}

var errTerminal = errors.New("target is terminal")

func (r *Recomputer) processTarget(ctx context.Context, targetID int64, trigger string, p domain.Profile, logger *slog.Logger) (TargetChange, *domain.Notification, error) {
	var (
		change TargetChange
		note   *domain.Notification
	)
	err := r.store.Write(ctx, func(tx *store.Tx) error {
		change, note = TargetChange{TargetID: targetID}, nil

		target, err := tx.GetTarget(ctx, targetID)
		if err != nil {
			return err
		}
		if target.Status.IsTerminal() {
			return errTerminal
		}
		book, err := tx.GetBook(ctx, target.BookID)
		if err != nil {
			return err
		}
		change.BookID = book.ID
		if book.Features.IsUnknown() {
			logging.WarnWithContext(logger, "scoring target with unknown features", string(domain.KindStaleFeature),
				logging.Int64(logging.FieldTargetID, target.ID),
				logging.Int64(logging.FieldBookID, book.ID),
				logging.String(logging.FieldErrorHint, "run enrich to fetch catalog features"),
				logging.String(logging.FieldImpact, "missing factors scored as neutral"),
			)
		}
		res := scoring.Score(book, p, r.scorer)
		change.Score = res.Score

		last, hasLast, err := tx.LatestCheckpoint(ctx, target.ID)
		if err != nil {
			return err
		}
		now := r.clock.Now()
		if !r.due(trigger, now, last, hasLast) {
			if res.Score != target.CachedScore {
				logger.Debug("score drift within checkpoint interval",
					logging.Int64(logging.FieldTargetID, target.ID),
					logging.Int("cached", target.CachedScore),
					logging.Int("current", res.Score),
				)
			}
			return nil
		}

		at := now
		var after *time.Time
		if hasLast {
			if !at.After(last.At) {
				at = last.At.Add(time.Nanosecond)
			}
			after = &last.At
		}
		helped, err := tx.CompletedBookIDsBetween(ctx, after, at)
		if err != nil {
			return err
		}
		cp, tr, err := r.targets.Record(ctx, tx, target, domain.Checkpoint{
			TargetID:    target.ID,
			At:          at,
			Score:       res.Score,
			Factors:     res.Factors,
			Gaps:        res.Gaps,
			BooksHelped: helped,
			Delta:       res.Score - target.CachedScore,
			Trigger:     trigger,
		})
		if err != nil {
			return err
		}
		change.Checkpoint = true
		change.Transition = tr
		if !tr.BecameReady {
			return nil
		}
		if trigger == targets.TriggerTick && !r.opts.NotifyOnTick {
			logger.Info("became ready on tick; notification suppressed",
				logging.Int64(logging.FieldTargetID, target.ID),
				logging.String(logging.FieldDecisionType, "notify_on_tick"),
			)
			return nil
		}
		n, err := tx.AppendNotification(ctx, domain.Notification{
			TargetID:  target.ID,
			BookID:    book.ID,
			Kind:      domain.NotificationBecameReady,
			Score:     cp.Score,
			CreatedAt: cp.At,
		})
		if err != nil {
			return err
		}
		note = &n
		logger.Info("target became ready",
			logging.Int64(logging.FieldTargetID, target.ID),
			logging.Int64(logging.FieldBookID, book.ID),
			logging.Int("score", cp.Score),
			logging.String(logging.FieldEventType, domain.NotificationBecameReady),
		)
		return nil
	})
	return change, note, err
}

// due applies the checkpoint rate limit. Completion triggers always write.
func (r *Recomputer) due(trigger string, now time.Time, last domain.Checkpoint, hasLast bool) bool {
	if trigger == targets.TriggerCompletion || !hasLast {
		return true
	}
	return now.Sub(last.At) >= r.opts.MinInterval
}

// Backfill replays the whole history from an empty profile and rewrites the
// latest snapshot. Checkpoints are left untouched.
func (r *Recomputer) Backfill(ctx context.Context) (domain.Profile, error) {
	var res profile.Result
	err := r.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		res, err = r.profiles.Rebuild(ctx, tx, r.clock.Now())
		return err
	})
	if err != nil {
		return domain.Profile{}, fmt.Errorf("backfill profile: %w", err)
	}
	return res.Profile, nil
}

func hintFor(err error) string {
	var corrupt *domain.CorruptError
	if errors.As(err, &corrupt) {
		return corrupt.RepairHint
	}
	return "retry the readiness check; see error for details"
}
