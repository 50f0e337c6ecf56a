package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"shelfmind/internal/domain"
)

var targetColumns = []string{
	"id", "book_id", "added_at", "note", "reminder_mode", "cached_score", "status",
	"plan_id", "became_ready_at", "updated_at",
}

func scanTarget(scanner rowScanner) (domain.DeferredTarget, error) {
	var (
		t                   domain.DeferredTarget
		addedAt, updatedAt  string
		mode, status        string
		planID, becameReady sql.NullString
	)
	if err := scanner.Scan(&t.ID, &t.BookID, &addedAt, &t.Note, &mode, &t.CachedScore, &status,
		&planID, &becameReady, &updatedAt); err != nil {
		return domain.DeferredTarget{}, err
	}
	var err error
	if t.AddedAt, err = parseTime(addedAt); err != nil {
		return domain.DeferredTarget{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.DeferredTarget{}, err
	}
	if t.BecameReady, err = parseNullTime(becameReady); err != nil {
		return domain.DeferredTarget{}, err
	}
	t.ReminderMode = domain.ReminderMode(mode)
	t.Status = domain.TargetStatus(status)
	t.PlanID = planID.String
	return t, nil
}

// DeferTarget inserts a new deferred target. A book may have at most one
// open (non-terminal) target.
func (t *Tx) DeferTarget(ctx context.Context, target domain.DeferredTarget) (domain.DeferredTarget, error) {
	if !target.ReminderMode.IsValid() {
		return domain.DeferredTarget{}, domain.NewValidationError("reminder_mode", fmt.Sprintf("unknown mode %q", target.ReminderMode))
	}
	if !target.Status.IsValid() || target.Status.IsTerminal() {
		return domain.DeferredTarget{}, domain.NewValidationError("status", fmt.Sprintf("cannot create a target in status %q", target.Status))
	}
	if err := t.requireBook(ctx, target.BookID); err != nil {
		return domain.DeferredTarget{}, err
	}
	res, err := t.exec(ctx, builder.Insert("deferred_targets").
		Columns("book_id", "added_at", "note", "reminder_mode", "cached_score", "status", "became_ready_at", "updated_at").
		Values(target.BookID, formatTime(target.AddedAt), target.Note, string(target.ReminderMode),
			target.CachedScore, string(target.Status), nullTime(target.BecameReady), formatTime(target.AddedAt)))
	if err != nil {
		return domain.DeferredTarget{}, wrapConstraint(fmt.Errorf("insert target: %w", err), "book_id", "book already has an open deferred target")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.DeferredTarget{}, fmt.Errorf("target id: %w", err)
	}
	return t.GetTarget(ctx, id)
}

// GetTarget loads one target.
func (t *Tx) GetTarget(ctx context.Context, id int64) (domain.DeferredTarget, error) {
	row, err := t.queryRow(ctx, builder.Select(targetColumns...).From("deferred_targets").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.DeferredTarget{}, err
	}
	target, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeferredTarget{}, domain.NotFoundf("target %d", id)
	}
	if err != nil {
		return domain.DeferredTarget{}, fmt.Errorf("get target: %w", err)
	}
	return target, nil
}

// TargetFilter narrows ListTargets.
type TargetFilter struct {
	Statuses []domain.TargetStatus
	OpenOnly bool
	BookID   int64
}

// ListTargets returns targets in creation order.
func (t *Tx) ListTargets(ctx context.Context, filter TargetFilter) ([]domain.DeferredTarget, error) {
	q := builder.Select(targetColumns...).From("deferred_targets").OrderBy("id")
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	if filter.OpenOnly {
		q = q.Where(sq.NotEq{"status": []string{string(domain.TargetPromoted), string(domain.TargetAbandoned)}})
	}
	if filter.BookID > 0 {
		q = q.Where(sq.Eq{"book_id": filter.BookID})
	}
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()
	var targets []domain.DeferredTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// UpdateTargetStatus writes a new status. Terminal targets are immutable.
// becameReady is stored when non-nil and left untouched otherwise.
func (t *Tx) UpdateTargetStatus(ctx context.Context, id int64, status domain.TargetStatus, becameReady *time.Time, now time.Time) error {
	if !status.IsValid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	current, err := t.GetTarget(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return domain.NewValidationError("status", fmt.Sprintf("target %d is %s and cannot change", id, current.Status))
	}
	update := builder.Update("deferred_targets").
		Set("status", string(status)).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": id})
	if becameReady != nil {
		update = update.Set("became_ready_at", formatTime(*becameReady))
	}
	if _, err := t.exec(ctx, update); err != nil {
		return fmt.Errorf("update target status: %w", err)
	}
	return nil
}

// SetTargetPlan links a target to a preparation plan; empty clears it.
func (t *Tx) SetTargetPlan(ctx context.Context, id int64, planID string, now time.Time) error {
	res, err := t.exec(ctx, builder.Update("deferred_targets").
		Set("plan_id", nullString(planID)).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return wrapConstraint(fmt.Errorf("set target plan: %w", err), "plan_id", "unknown plan")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("target %d", id)
	}
	return nil
}

// DeleteTarget removes a target together with its checkpoints and
// notifications.
func (t *Tx) DeleteTarget(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, builder.Delete("deferred_targets").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("target %d", id)
	}
	return nil
}

// AppendCheckpoint appends a checkpoint and updates the target's cached
// score to match. Checkpoint timestamps must strictly increase per target.
func (t *Tx) AppendCheckpoint(ctx context.Context, cp domain.Checkpoint) (domain.Checkpoint, error) {
	if cp.Score < 0 || cp.Score > 100 {
		return domain.Checkpoint{}, domain.NewValidationError("score", fmt.Sprintf("must be in 0..100 (got %d)", cp.Score))
	}
	target, err := t.GetTarget(ctx, cp.TargetID)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if target.Status.IsTerminal() {
		return domain.Checkpoint{}, domain.NewValidationError("target", fmt.Sprintf("target %d is %s", target.ID, target.Status))
	}
	last, ok, err := t.LatestCheckpoint(ctx, cp.TargetID)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if ok && !cp.At.After(last.At) {
		return domain.Checkpoint{}, domain.NewValidationError("checked_at",
			fmt.Sprintf("must follow the latest checkpoint at %s", last.At.Format(time.RFC3339Nano)))
	}
	gaps, err := encodeJSON(nonNilGaps(cp.Gaps))
	if err != nil {
		return domain.Checkpoint{}, err
	}
	helped, err := encodeJSON(nonNilIDs(cp.BooksHelped))
	if err != nil {
		return domain.Checkpoint{}, err
	}
	res, err := t.exec(ctx, builder.Insert("readiness_checkpoints").
		Columns("target_id", "checked_at", "score", "complexity_match", "interest_alignment",
			"completion_likelihood", "enjoyment_potential", "growth_opportunity", "gaps",
			"books_helped", "delta", "trigger").
		Values(cp.TargetID, formatTime(cp.At), cp.Score, cp.Factors.ComplexityMatch, cp.Factors.InterestAlignment,
			cp.Factors.CompletionLikelihood, cp.Factors.EnjoymentPotential, cp.Factors.GrowthOpportunity, gaps,
			helped, cp.Delta, cp.Trigger))
	if err != nil {
		return domain.Checkpoint{}, wrapConstraint(fmt.Errorf("insert checkpoint: %w", err), "checkpoint", "rejected by store constraints")
	}
	if cp.ID, err = res.LastInsertId(); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("checkpoint id: %w", err)
	}
	if _, err := t.exec(ctx, builder.Update("deferred_targets").
		Set("cached_score", cp.Score).
		Set("updated_at", formatTime(cp.At)).
		Where(sq.Eq{"id": cp.TargetID})); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("update cached score: %w", err)
	}
	cp.At = cp.At.UTC()
	return cp, nil
}

const checkpointColumns = "id, target_id, checked_at, score, complexity_match, interest_alignment, " +
	"completion_likelihood, enjoyment_potential, growth_opportunity, gaps, books_helped, delta, trigger"

func scanCheckpoint(scanner rowScanner) (domain.Checkpoint, error) {
	var (
		cp               domain.Checkpoint
		at, gaps, helped string
	)
	if err := scanner.Scan(&cp.ID, &cp.TargetID, &at, &cp.Score, &cp.Factors.ComplexityMatch,
		&cp.Factors.InterestAlignment, &cp.Factors.CompletionLikelihood, &cp.Factors.EnjoymentPotential,
		&cp.Factors.GrowthOpportunity, &gaps, &helped, &cp.Delta, &cp.Trigger); err != nil {
		return domain.Checkpoint{}, err
	}
	var err error
	if cp.At, err = parseTime(at); err != nil {
		return domain.Checkpoint{}, err
	}
	if err := decodeJSON(gaps, &cp.Gaps); err != nil {
		return domain.Checkpoint{}, err
	}
	if err := decodeJSON(helped, &cp.BooksHelped); err != nil {
		return domain.Checkpoint{}, err
	}
	return cp, nil
}

// ReadCheckpoints returns the checkpoint history of a target in append
// order. A history whose timestamps do not strictly increase, or whose last
// score disagrees with the cached score, is reported as corrupt.
func (t *Tx) ReadCheckpoints(ctx context.Context, targetID int64) ([]domain.Checkpoint, error) {
	target, err := t.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	rows, err := t.query(ctx, builder.Select(checkpointColumns).From("readiness_checkpoints").
		Where(sq.Eq{"target_id": targetID}).OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	defer rows.Close()
	var checkpoints []domain.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	if err := domain.ValidateCheckpointOrder(targetID, checkpoints); err != nil {
		return nil, err
	}
	if n := len(checkpoints); n > 0 && checkpoints[n-1].Score != target.CachedScore {
		return nil, &domain.CorruptError{
			Entity:     "target",
			ID:         strconv.FormatInt(targetID, 10),
			Detail:     fmt.Sprintf("cached score %d differs from latest checkpoint score %d", target.CachedScore, checkpoints[n-1].Score),
			RepairHint: "run a readiness check to append a fresh checkpoint",
		}
	}
	return checkpoints, nil
}

// LatestCheckpoint returns the most recent checkpoint of a target.
func (t *Tx) LatestCheckpoint(ctx context.Context, targetID int64) (domain.Checkpoint, bool, error) {
	row, err := t.queryRow(ctx, builder.Select(checkpointColumns).From("readiness_checkpoints").
		Where(sq.Eq{"target_id": targetID}).OrderBy("id DESC").Limit(1))
	if err != nil {
		return domain.Checkpoint{}, false, err
	}
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("latest checkpoint: %w", err)
	}
	return cp, true, nil
}

func nonNilGaps(gaps []domain.GapTag) []domain.GapTag {
	if gaps == nil {
		return []domain.GapTag{}
	}
	return gaps
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
