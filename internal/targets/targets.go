// Package targets owns the deferred-target lifecycle: it projects scores
// onto statuses, guards transitions and records checkpoints.
package targets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/store"
)

// Thresholds are the score lower bounds of the ready and preparing states.
type Thresholds struct {
	Ready     int
	Preparing int
}

// ThresholdsFromConfig uses the read_now and maybe_later score bands.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{Ready: cfg.Scorer.Thresholds[0], Preparing: cfg.Scorer.Thresholds[1]}
}

// Project maps a score onto a non-terminal status.
func Project(score int, th Thresholds) domain.TargetStatus {
	switch {
	case score >= th.Ready:
		return domain.TargetReady
	case score >= th.Preparing:
		return domain.TargetPreparing
	default:
		return domain.TargetWaiting
	}
}

// Transition describes a status change caused by one checkpoint.
type Transition struct {
	From        domain.TargetStatus
	To          domain.TargetStatus
	BecameReady bool
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Next computes the transition a new score causes. Terminal targets never
// move. A became-ready edge fires only when entering ready from another
// status.
func Next(from domain.TargetStatus, score int, th Thresholds) (Transition, error) {
	if from.IsTerminal() {
		return Transition{}, domain.NewValidationError("status", fmt.Sprintf("target is %s", from))
	}
	to := Project(score, th)
	return Transition{From: from, To: to, BecameReady: from != domain.TargetReady && to == domain.TargetReady}, nil
}

// CheckUserAction validates a user-requested status change. Users may only
// end a target by promoting or abandoning it.
func CheckUserAction(from, to domain.TargetStatus) error {
	if from.IsTerminal() {
		return domain.NewValidationError("status", fmt.Sprintf("target is already %s", from))
	}
	if !to.IsTerminal() {
		return domain.NewValidationError("status", fmt.Sprintf("%s is set by readiness checks, not by users", to))
	}
	return nil
}

// Manager applies checkpoints and user actions inside store transactions.
type Manager struct {
	th     Thresholds
	logger *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(th Thresholds, logger *slog.Logger) *Manager {
	return &Manager{th: th, logger: logging.NewComponentLogger(logger, "targets")}
}

// Thresholds returns the projection thresholds.
func (m *Manager) Thresholds() Thresholds {
	return m.th
}

// Defer creates a target for bookID with its initial checkpoint.
func (m *Manager) Defer(ctx context.Context, tx *store.Tx, bookID int64, note string, mode domain.ReminderMode, res domain.ScoreResult, now time.Time) (domain.DeferredTarget, domain.Checkpoint, error) {
	status := Project(res.Score, m.th)
	target := domain.DeferredTarget{
		BookID:       bookID,
		AddedAt:      now,
		Note:         note,
		ReminderMode: mode,
		CachedScore:  res.Score,
		Status:       status,
	}
	if status == domain.TargetReady {
		target.BecameReady = &now
	}
	created, err := tx.DeferTarget(ctx, target)
	if err != nil {
		return domain.DeferredTarget{}, domain.Checkpoint{}, err
	}
	cp, err := tx.AppendCheckpoint(ctx, domain.Checkpoint{
		TargetID:    created.ID,
		At:          now,
		Score:       res.Score,
		Factors:     res.Factors,
		Gaps:        res.Gaps,
		BooksHelped: []int64{},
		Trigger:     TriggerDefer,
	})
	if err != nil {
		return domain.DeferredTarget{}, domain.Checkpoint{}, err
	}
	m.logger.Info("target deferred",
		logging.Int64(logging.FieldTargetID, created.ID),
		logging.Int64(logging.FieldBookID, bookID),
		logging.Int("score", res.Score),
		logging.String("status", string(status)),
	)
	return created, cp, nil
}

// Record appends cp to the target's history and moves the target to the
// status its score projects to.
func (m *Manager) Record(ctx context.Context, tx *store.Tx, target domain.DeferredTarget, cp domain.Checkpoint) (domain.Checkpoint, Transition, error) {
	tr, err := Next(target.Status, cp.Score, m.th)
	if err != nil {
		return domain.Checkpoint{}, Transition{}, err
	}
	stored, err := tx.AppendCheckpoint(ctx, cp)
	if err != nil {
		return domain.Checkpoint{}, Transition{}, err
	}
	if tr.Changed() {
		var becameReady *time.Time
		if tr.BecameReady {
			becameReady = &stored.At
		}
		if err := tx.UpdateTargetStatus(ctx, target.ID, tr.To, becameReady, stored.At); err != nil {
			return domain.Checkpoint{}, Transition{}, err
		}
		m.logger.Info("target status changed",
			logging.Int64(logging.FieldTargetID, target.ID),
			logging.String("from", string(tr.From)),
			logging.String("to", string(tr.To)),
			logging.Int("score", stored.Score),
		)
	}
	return stored, tr, nil
}

// Finish moves a target to a terminal status on user request.
func (m *Manager) Finish(ctx context.Context, tx *store.Tx, targetID int64, to domain.TargetStatus, now time.Time) (domain.DeferredTarget, error) {
	target, err := tx.GetTarget(ctx, targetID)
	if err != nil {
		return domain.DeferredTarget{}, err
	}
	if err := CheckUserAction(target.Status, to); err != nil {
		return domain.DeferredTarget{}, err
	}
	if err := tx.UpdateTargetStatus(ctx, targetID, to, nil, now); err != nil {
		return domain.DeferredTarget{}, err
	}
	if target.PlanID != "" {
		planStatus := domain.PlanAbandoned
		if to == domain.TargetPromoted {
			planStatus = domain.PlanCompleted
		}
		if err := tx.UpdatePlanStatus(ctx, target.PlanID, planStatus); err != nil {
			return domain.DeferredTarget{}, err
		}
	}
	m.logger.Info("target finished",
		logging.Int64(logging.FieldTargetID, targetID),
		logging.String("status", string(to)),
	)
	return tx.GetTarget(ctx, targetID)
}

// Checkpoint triggers.
const (
	TriggerDefer      = "defer"
	TriggerCompletion = "completion"
	TriggerTick       = "tick"
	TriggerManual     = "manual"
)
