package engine

import (
	"context"
	"time"

	"shelfmind/internal/decay"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/recompute"
	"shelfmind/internal/store"
	"shelfmind/internal/targets"
)

// CompletionInput describes a reading outcome. A zero At means now; an
// empty Status means completed.
type CompletionInput struct {
	BookID    int64
	Rating    *int
	Status    domain.CompletionStatus
	At        time.Time
	PagesRead *int
}

// CompletionResult reports everything a completion caused.
type CompletionResult struct {
	Event domain.CompletionEvent
	// Promoted lists open targets for the same book that the completion
	// moved to promoted.
	Promoted []domain.DeferredTarget
	// Mastery is the book's mastery entity after a rated completion.
	Mastery   *domain.MasteryEntity
	Readiness recompute.Report
}

// LogCompletion appends a completion event and re-scores open targets.
//
// The event, target promotion and mastery touch commit together. The
// readiness run that follows updates each target in its own transaction; a
// failure there is logged and left for the next tick.
func (e *Engine) LogCompletion(ctx context.Context, in CompletionInput) (CompletionResult, error) {
	if in.Status == "" {
		in.Status = domain.CompletionCompleted
	}
	now := e.clock.Now()
	if in.At.IsZero() {
		in.At = now
	}

	var result CompletionResult
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		result = CompletionResult{}
		event, err := tx.AppendCompletion(ctx, domain.CompletionEvent{
			BookID:    in.BookID,
			At:        in.At,
			Status:    in.Status,
			Rating:    in.Rating,
			PagesRead: in.PagesRead,
		}, now)
		if err != nil {
			return err
		}
		result.Event = event
		if event.Status != domain.CompletionCompleted {
			return nil
		}
		if e.cfg.Targets.AutoPromoteOnCompletion {
			open, err := tx.ListTargets(ctx, store.TargetFilter{OpenOnly: true, BookID: event.BookID})
			if err != nil {
				return err
			}
			for _, target := range open {
				promoted, err := e.targets.Finish(ctx, tx, target.ID, domain.TargetPromoted, event.At)
				if err != nil {
					return err
				}
				result.Promoted = append(result.Promoted, promoted)
			}
		}
		if event.Rating != nil {
			entity, err := decay.TouchBook(ctx, tx, event.BookID, *event.Rating, event.At)
			if err != nil {
				return err
			}
			result.Mastery = &entity
		}
		return nil
	})
	if err != nil {
		return CompletionResult{}, err
	}
	e.logger.Info("completion logged",
		logging.Int64(logging.FieldBookID, result.Event.BookID),
		logging.String("status", string(result.Event.Status)),
		logging.Int("promoted", len(result.Promoted)),
	)

	report, err := e.recomputer.Run(ctx, targets.TriggerCompletion)
	if err != nil {
		logging.ErrorWithContext(e.logger, "readiness check after completion failed", "recompute_failed",
			logging.Int64(logging.FieldBookID, result.Event.BookID),
			logging.String(logging.FieldErrorHint, "run `shelfmind check` once the store is reachable"),
			logging.Error(err),
		)
	}
	result.Readiness = report
	return result, nil
}

// History returns completion events in emission order.
func (e *Engine) History(ctx context.Context, limit int) ([]domain.CompletionEvent, error) {
	if limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	var out []domain.CompletionEvent
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ReadHistory(ctx, store.HistoryFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
