package engine

import (
	"context"

	"shelfmind/internal/domain"
	"shelfmind/internal/recompute"
	"shelfmind/internal/scoring"
	"shelfmind/internal/store"
	"shelfmind/internal/targets"
)

// DeferResult is a new target with its first checkpoint.
type DeferResult struct {
	Target     domain.DeferredTarget `json:"target" yaml:"target"`
	Checkpoint domain.Checkpoint     `json:"checkpoint" yaml:"checkpoint"`
	Result     domain.ScoreResult    `json:"result" yaml:"result"`
}

// DeferTarget adds a book to the reading queue. The book is scored against
// the current profile and that score becomes the target's first checkpoint.
// An empty mode means on_ready.
func (e *Engine) DeferTarget(ctx context.Context, bookID int64, note string, mode domain.ReminderMode) (DeferResult, error) {
	if mode == "" {
		mode = domain.ReminderOnReady
	}
	if !mode.IsValid() {
		return DeferResult{}, domain.NewValidationError("reminder_mode", "must be one of on_ready, monthly, quarterly, manual")
	}
	var (
		out  DeferResult
		book domain.Book
	)
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		book, err = tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		res, err := e.profiles.Load(ctx, tx)
		if err != nil {
			return err
		}
		out.Result = scoring.Score(book, res.Profile, e.scorer)
		out.Target, out.Checkpoint, err = e.targets.Defer(ctx, tx, bookID, note, mode, out.Result, e.clock.Now())
		return err
	})
	if err != nil {
		return DeferResult{}, err
	}
	e.warnStale(book)
	return out, nil
}

// TargetView is a target together with its book.
type TargetView struct {
	Target domain.DeferredTarget `json:"target" yaml:"target"`
	Book   domain.Book           `json:"book" yaml:"book"`
}

// ListTargets returns targets in creation order, optionally restricted to
// statuses.
func (e *Engine) ListTargets(ctx context.Context, statuses ...domain.TargetStatus) ([]TargetView, error) {
	for _, s := range statuses {
		if !s.IsValid() {
			return nil, domain.NewValidationError("status", "unknown target status "+string(s))
		}
	}
	var out []TargetView
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		list, err := tx.ListTargets(ctx, store.TargetFilter{Statuses: statuses})
		if err != nil {
			return err
		}
		ids := make([]int64, len(list))
		for i, t := range list {
			ids[i] = t.BookID
		}
		books, err := tx.BooksByID(ctx, ids)
		if err != nil {
			return err
		}
		out = make([]TargetView, 0, len(list))
		for _, t := range list {
			out = append(out, TargetView{Target: t, Book: books[t.BookID]})
		}
		return nil
	})
	return out, err
}

// ListReady returns targets currently in the ready status.
func (e *Engine) ListReady(ctx context.Context) ([]TargetView, error) {
	return e.ListTargets(ctx, domain.TargetReady)
}

// GetTarget loads one target.
func (e *Engine) GetTarget(ctx context.Context, id int64) (TargetView, error) {
	var out TargetView
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		target, err := tx.GetTarget(ctx, id)
		if err != nil {
			return err
		}
		book, err := tx.GetBook(ctx, target.BookID)
		if err != nil {
			return err
		}
		out = TargetView{Target: target, Book: book}
		return nil
	})
	return out, err
}

// PromoteTarget marks a target as started by the reader.
func (e *Engine) PromoteTarget(ctx context.Context, id int64) (domain.DeferredTarget, error) {
	return e.finish(ctx, id, domain.TargetPromoted)
}

// AbandonTarget drops a target from the queue. Its checkpoints are kept.
func (e *Engine) AbandonTarget(ctx context.Context, id int64) (domain.DeferredTarget, error) {
	return e.finish(ctx, id, domain.TargetAbandoned)
}

func (e *Engine) finish(ctx context.Context, id int64, to domain.TargetStatus) (domain.DeferredTarget, error) {
	var out domain.DeferredTarget
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		out, err = e.targets.Finish(ctx, tx, id, to, e.clock.Now())
		return err
	})
	return out, err
}

// DeleteTarget removes a target and its checkpoints.
func (e *Engine) DeleteTarget(ctx context.Context, id int64) error {
	return e.store.Write(ctx, func(tx *store.Tx) error {
		return tx.DeleteTarget(ctx, id)
	})
}

// ShowCheckpoints returns a target's readiness history oldest first.
func (e *Engine) ShowCheckpoints(ctx context.Context, targetID int64) ([]domain.Checkpoint, error) {
	var out []domain.Checkpoint
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetTarget(ctx, targetID); err != nil {
			return err
		}
		var err error
		out, err = tx.ReadCheckpoints(ctx, targetID)
		return err
	})
	return out, err
}

// RunReadinessCheck re-scores every open target now. Checkpoints stay rate
// limited; a target that becomes ready is always queued for notification.
func (e *Engine) RunReadinessCheck(ctx context.Context) (recompute.Report, error) {
	return e.recomputer.Run(ctx, targets.TriggerManual)
}

// ReadinessTick is the scheduled variant of RunReadinessCheck.
func (e *Engine) ReadinessTick(ctx context.Context) (recompute.Report, error) {
	return e.recomputer.Run(ctx, targets.TriggerTick)
}
