package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"

	"shelfmind/internal/domain"
)

var masteryColumns = []string{"key", "kind", "category", "mastery", "last_touched_at", "last_decay_at"}

func scanMastery(scanner rowScanner) (domain.MasteryEntity, error) {
	var (
		e             domain.MasteryEntity
		kind, touched string
		lastDecay     sql.NullString
	)
	if err := scanner.Scan(&e.Key, &kind, &e.Category, &e.Mastery, &touched, &lastDecay); err != nil {
		return domain.MasteryEntity{}, err
	}
	var err error
	e.Kind = domain.EntityKind(kind)
	if e.LastTouchedAt, err = parseTime(touched); err != nil {
		return domain.MasteryEntity{}, err
	}
	if e.LastDecayAt, err = parseNullTime(lastDecay); err != nil {
		return domain.MasteryEntity{}, err
	}
	return e, nil
}

// CreateMasteryEntity inserts an entity and its first audit row (old value
// 0) so that the audit trail always explains the current mastery.
func (t *Tx) CreateMasteryEntity(ctx context.Context, e domain.MasteryEntity, cause domain.AuditCause, note string) (domain.MasteryEntity, error) {
	kind, _, err := domain.ParseEntityKey(e.Key)
	if err != nil {
		return domain.MasteryEntity{}, err
	}
	if e.Mastery < 0 || e.Mastery > 100 {
		return domain.MasteryEntity{}, domain.NewValidationError("mastery", fmt.Sprintf("must be in 0..100 (got %d)", e.Mastery))
	}
	if !cause.IsTouch() {
		return domain.MasteryEntity{}, domain.NewValidationError("cause", fmt.Sprintf("%s cannot create an entity", cause))
	}
	e.Kind = kind
	stamp := formatTime(e.LastTouchedAt)
	if _, err := t.exec(ctx, builder.Insert("mastery_entities").
		Columns("key", "kind", "category", "mastery", "last_touched_at", "created_at").
		Values(e.Key, string(e.Kind), e.Category, e.Mastery, stamp, stamp)); err != nil {
		return domain.MasteryEntity{}, wrapConstraint(fmt.Errorf("insert mastery entity: %w", err), "entity", "entity already exists")
	}
	if _, err := t.insertAudit(ctx, domain.DecayAudit{
		EntityKey: e.Key,
		At:        e.LastTouchedAt,
		OldValue:  0,
		NewValue:  e.Mastery,
		Cause:     cause,
		Note:      note,
	}); err != nil {
		return domain.MasteryEntity{}, err
	}
	return t.GetMasteryEntity(ctx, e.Key)
}

// GetMasteryEntity loads one entity.
func (t *Tx) GetMasteryEntity(ctx context.Context, key string) (domain.MasteryEntity, error) {
	row, err := t.queryRow(ctx, builder.Select(masteryColumns...).From("mastery_entities").Where(sq.Eq{"key": key}))
	if err != nil {
		return domain.MasteryEntity{}, err
	}
	e, err := scanMastery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MasteryEntity{}, domain.NotFoundf("entity %s", key)
	}
	if err != nil {
		return domain.MasteryEntity{}, fmt.Errorf("get mastery entity: %w", err)
	}
	return e, nil
}

// SetEntityCategory changes the category used by decay selectors.
func (t *Tx) SetEntityCategory(ctx context.Context, key, category string) error {
	res, err := t.exec(ctx, builder.Update("mastery_entities").Set("category", category).Where(sq.Eq{"key": key}))
	if err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("entity %s", key)
	}
	return nil
}

// ListMasteryEntities returns entities ordered by key, optionally limited to
// one category.
func (t *Tx) ListMasteryEntities(ctx context.Context, category string) ([]domain.MasteryEntity, error) {
	q := builder.Select(masteryColumns...).From("mastery_entities").OrderBy("key")
	if category != "" {
		q = q.Where(sq.Eq{"category": category})
	}
	return t.listMastery(ctx, q)
}

// DecayCandidates returns entities matching selector that have not been
// touched since touchedBefore, ordered by key.
func (t *Tx) DecayCandidates(ctx context.Context, selector domain.DecaySelector, touchedBefore time.Time) ([]domain.MasteryEntity, error) {
	q := builder.Select(masteryColumns...).From("mastery_entities").
		Where(sq.Lt{"last_touched_at": formatTime(touchedBefore)}).
		OrderBy("key")
	if len(selector.Keys) > 0 {
		q = q.Where(sq.Eq{"key": selector.Keys})
	} else {
		q = q.Where(sq.Eq{"category": selector.Category})
	}
	return t.listMastery(ctx, q)
}

func (t *Tx) listMastery(ctx context.Context, q sq.SelectBuilder) ([]domain.MasteryEntity, error) {
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list mastery: %w", err)
	}
	defer rows.Close()
	var out []domain.MasteryEntity
	for rows.Next() {
		e, err := scanMastery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mastery: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendDecayAudit appends an audit row and applies its new value to the
// entity. Review and manual edits advance last_touched_at; decay ticks only
// advance last_decay_at.
func (t *Tx) AppendDecayAudit(ctx context.Context, row domain.DecayAudit) (domain.DecayAudit, error) {
	if !row.Cause.IsValid() {
		return domain.DecayAudit{}, domain.NewValidationError("cause", fmt.Sprintf("unknown cause %q", row.Cause))
	}
	if row.NewValue < 0 || row.NewValue > 100 {
		return domain.DecayAudit{}, domain.NewValidationError("mastery", fmt.Sprintf("must be in 0..100 (got %d)", row.NewValue))
	}
	entity, err := t.GetMasteryEntity(ctx, row.EntityKey)
	if err != nil {
		return domain.DecayAudit{}, err
	}
	row.OldValue = entity.Mastery
	update := builder.Update("mastery_entities").Set("mastery", row.NewValue).Where(sq.Eq{"key": row.EntityKey})
	if row.Cause.IsTouch() {
		update = update.Set("last_touched_at", formatTime(row.At))
	} else {
		update = update.Set("last_decay_at", formatTime(row.At))
	}
	if _, err := t.exec(ctx, update); err != nil {
		return domain.DecayAudit{}, fmt.Errorf("apply mastery: %w", err)
	}
	return t.insertAudit(ctx, row)
}

func (t *Tx) insertAudit(ctx context.Context, row domain.DecayAudit) (domain.DecayAudit, error) {
	res, err := t.exec(ctx, builder.Insert("decay_audit").
		Columns("entity_key", "at", "old_value", "new_value", "cause", "note", "rule_id").
		Values(row.EntityKey, formatTime(row.At), row.OldValue, row.NewValue, string(row.Cause), row.Note, nullInt64(row.RuleID)))
	if err != nil {
		return domain.DecayAudit{}, fmt.Errorf("insert audit: %w", err)
	}
	if row.ID, err = res.LastInsertId(); err != nil {
		return domain.DecayAudit{}, fmt.Errorf("audit id: %w", err)
	}
	row.At = row.At.UTC()
	return row, nil
}

// ReadLatestMastery returns the new value of the latest audit row of an
// entity, which is its current mastery.
func (t *Tx) ReadLatestMastery(ctx context.Context, key string) (int, error) {
	row, err := t.queryRow(ctx, builder.Select("new_value").From("decay_audit").
		Where(sq.Eq{"entity_key": key}).OrderBy("id DESC").Limit(1))
	if err != nil {
		return 0, err
	}
	var value int
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.NotFoundf("entity %s", key)
		}
		return 0, fmt.Errorf("latest mastery: %w", err)
	}
	return value, nil
}

// MasteryHistory returns the audit trail of an entity oldest first. A
// positive limit keeps only the most recent rows.
func (t *Tx) MasteryHistory(ctx context.Context, key string, limit uint64) ([]domain.DecayAudit, error) {
	q := builder.Select("id", "entity_key", "at", "old_value", "new_value", "cause", "note", "rule_id").
		From("decay_audit").OrderBy("id DESC")
	if key != "" {
		q = q.Where(sq.Eq{"entity_key": key})
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("mastery history: %w", err)
	}
	defer rows.Close()
	var out []domain.DecayAudit
	for rows.Next() {
		var (
			a         domain.DecayAudit
			at, cause string
			ruleID    sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.EntityKey, &at, &a.OldValue, &a.NewValue, &cause, &a.Note, &ruleID); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if a.At, err = parseTime(at); err != nil {
			return nil, err
		}
		a.Cause = domain.AuditCause(cause)
		a.RuleID = int64Ptr(ruleID)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
