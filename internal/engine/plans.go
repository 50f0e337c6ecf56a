package engine

import (
	"context"
	"fmt"

	"shelfmind/internal/domain"
	"shelfmind/internal/store"
)

// Prepare builds a preparation plan for an open target, replacing any plan
// it already has.
func (e *Engine) Prepare(ctx context.Context, targetID int64) (domain.PreparationPlan, error) {
	var plan domain.PreparationPlan
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		target, err := tx.GetTarget(ctx, targetID)
		if err != nil {
			return err
		}
		if target.Status.IsTerminal() {
			return domain.NewValidationError("target", fmt.Sprintf("target %d is %s", targetID, target.Status))
		}
		book, err := tx.GetBook(ctx, target.BookID)
		if err != nil {
			return err
		}
		res, err := e.profiles.Load(ctx, tx)
		if err != nil {
			return err
		}
		built, err := e.planner.Build(ctx, tx, book, res, e.clock.Now())
		if err != nil {
			return err
		}
		plan, err = e.planner.Save(ctx, tx, target, built)
		return err
	})
	return plan, err
}

// ListPlans returns plans newest first, for one target when targetID is
// set.
func (e *Engine) ListPlans(ctx context.Context, targetID int64) ([]domain.PreparationPlan, error) {
	var out []domain.PreparationPlan
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var bookID int64
		if targetID > 0 {
			target, err := tx.GetTarget(ctx, targetID)
			if err != nil {
				return err
			}
			bookID = target.BookID
		}
		var err error
		out, err = tx.ListPlans(ctx, bookID)
		return err
	})
	return out, err
}

// GetPlan loads one plan with its steps.
func (e *Engine) GetPlan(ctx context.Context, id string) (domain.PreparationPlan, error) {
	var out domain.PreparationPlan
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GetPlan(ctx, id)
		return err
	})
	return out, err
}

// SetPlanStatus closes an active plan. Plans only move from active to
// abandoned or completed.
func (e *Engine) SetPlanStatus(ctx context.Context, id string, status domain.PlanStatus) (domain.PreparationPlan, error) {
	if status != domain.PlanAbandoned && status != domain.PlanCompleted {
		return domain.PreparationPlan{}, domain.NewValidationError("status", "must be abandoned or completed")
	}
	var out domain.PreparationPlan
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		plan, err := tx.GetPlan(ctx, id)
		if err != nil {
			return err
		}
		if plan.Status != domain.PlanActive {
			return domain.NewValidationError("status", fmt.Sprintf("plan %s is already %s", id, plan.Status))
		}
		if err := tx.UpdatePlanStatus(ctx, id, status); err != nil {
			return err
		}
		plan.Status = status
		out = plan
		return nil
	})
	return out, err
}
