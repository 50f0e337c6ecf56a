package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"shelfmind/internal/domain"
)

// InsertPlan stores a preparation plan and its ordered steps.
func (t *Tx) InsertPlan(ctx context.Context, plan domain.PreparationPlan) (domain.PreparationPlan, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Status == "" {
		plan.Status = domain.PlanActive
	}
	if !plan.Status.IsValid() {
		return domain.PreparationPlan{}, domain.NewValidationError("status", fmt.Sprintf("unknown plan status %q", plan.Status))
	}
	if len(plan.Steps) == 0 {
		return domain.PreparationPlan{}, domain.NewValidationError("steps", "plan needs at least one step")
	}
	if _, err := t.exec(ctx, builder.Insert("preparation_plans").
		Columns("id", "target_book_id", "created_at", "duration_days", "projected_score", "status").
		Values(plan.ID, plan.TargetBookID, formatTime(plan.CreatedAt), plan.DurationDays, plan.ProjectedScore, string(plan.Status))); err != nil {
		return domain.PreparationPlan{}, wrapConstraint(fmt.Errorf("insert plan: %w", err), "target_book_id", "unknown book")
	}
	insert := builder.Insert("plan_steps").Columns("plan_id", "position", "book_id", "rationale")
	for i, step := range plan.Steps {
		insert = insert.Values(plan.ID, i, step.BookID, string(step.Rationale))
	}
	if _, err := t.exec(ctx, insert); err != nil {
		return domain.PreparationPlan{}, wrapConstraint(fmt.Errorf("insert plan steps: %w", err), "steps", "unknown book")
	}
	plan.CreatedAt = plan.CreatedAt.UTC()
	return plan, nil
}

// GetPlan loads a plan with its steps.
func (t *Tx) GetPlan(ctx context.Context, id string) (domain.PreparationPlan, error) {
	plans, err := t.listPlans(ctx, builder.Select("id", "target_book_id", "created_at", "duration_days", "projected_score", "status").
		From("preparation_plans").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.PreparationPlan{}, err
	}
	if len(plans) == 0 {
		return domain.PreparationPlan{}, domain.NotFoundf("plan %s", id)
	}
	return plans[0], nil
}

// ListPlans returns plans for a target book, newest first. A zero book id
// lists every plan.
func (t *Tx) ListPlans(ctx context.Context, targetBookID int64) ([]domain.PreparationPlan, error) {
	q := builder.Select("id", "target_book_id", "created_at", "duration_days", "projected_score", "status").
		From("preparation_plans").OrderBy("created_at DESC", "rowid DESC")
	if targetBookID > 0 {
		q = q.Where(sq.Eq{"target_book_id": targetBookID})
	}
	return t.listPlans(ctx, q)
}

// UpdatePlanStatus changes the status of a plan.
func (t *Tx) UpdatePlanStatus(ctx context.Context, id string, status domain.PlanStatus) error {
	if !status.IsValid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown plan status %q", status))
	}
	res, err := t.exec(ctx, builder.Update("preparation_plans").Set("status", string(status)).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("plan %s", id)
	}
	return nil
}

func (t *Tx) listPlans(ctx context.Context, q sq.SelectBuilder) ([]domain.PreparationPlan, error) {
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	var plans []domain.PreparationPlan
	for rows.Next() {
		var (
			p       domain.PreparationPlan
			created string
			status  string
		)
		if err := rows.Scan(&p.ID, &p.TargetBookID, &created, &p.DurationDays, &p.ProjectedScore, &status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			rows.Close()
			return nil, err
		}
		p.Status = domain.PlanStatus(status)
		plans = append(plans, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	for i := range plans {
		steps, err := t.planSteps(ctx, plans[i].ID)
		if err != nil {
			return nil, err
		}
		plans[i].Steps = steps
	}
	return plans, nil
}

func (t *Tx) planSteps(ctx context.Context, planID string) ([]domain.PlanStep, error) {
	rows, err := t.query(ctx, builder.Select("book_id", "rationale").From("plan_steps").
		Where(sq.Eq{"plan_id": planID}).OrderBy("position"))
	if err != nil {
		return nil, fmt.Errorf("plan steps: %w", err)
	}
	defer rows.Close()
	var steps []domain.PlanStep
	for rows.Next() {
		var (
			step      domain.PlanStep
			rationale string
		)
		if err := rows.Scan(&step.BookID, &rationale); err != nil {
			return nil, fmt.Errorf("scan plan step: %w", err)
		}
		step.Rationale = domain.GapTag(rationale)
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ActivePlanForBook returns the newest active plan of a target book.
func (t *Tx) ActivePlanForBook(ctx context.Context, bookID int64) (domain.PreparationPlan, bool, error) {
	row, err := t.queryRow(ctx, builder.Select("id").From("preparation_plans").
		Where(sq.Eq{"target_book_id": bookID, "status": string(domain.PlanActive)}).
		OrderBy("created_at DESC", "rowid DESC").Limit(1))
	if err != nil {
		return domain.PreparationPlan{}, false, err
	}
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PreparationPlan{}, false, nil
		}
		return domain.PreparationPlan{}, false, fmt.Errorf("active plan: %w", err)
	}
	plan, err := t.GetPlan(ctx, id)
	return plan, err == nil, err
}

// AbandonActivePlans marks every active plan of a book abandoned.
func (t *Tx) AbandonActivePlans(ctx context.Context, bookID int64) error {
	if _, err := t.exec(ctx, builder.Update("preparation_plans").
		Set("status", string(domain.PlanAbandoned)).
		Where(sq.Eq{"target_book_id": bookID, "status": string(domain.PlanActive)})); err != nil {
		return fmt.Errorf("abandon plans: %w", err)
	}
	return nil
}
