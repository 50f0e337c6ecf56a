package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"shelfmind/internal/domain"
)

var ruleColumns = []string{"id", "selector", "inactivity_days", "fraction", "floor", "enabled", "created_at", "updated_at"}

func scanRule(scanner rowScanner) (domain.DecayRule, error) {
	var (
		r                          domain.DecayRule
		selector, created, updated string
		enabled                    int
	)
	if err := scanner.Scan(&r.ID, &selector, &r.InactivityDays, &r.Fraction, &r.Floor, &enabled, &created, &updated); err != nil {
		return domain.DecayRule{}, err
	}
	var err error
	if r.Selector, err = domain.ParseDecaySelector(selector); err != nil {
		return domain.DecayRule{}, &domain.CorruptError{
			Entity:     "decay_rule",
			ID:         fmt.Sprintf("%d", r.ID),
			Detail:     err.Error(),
			RepairHint: "disable the rule and create it again with a valid selector",
		}
	}
	r.Enabled = enabled == 1
	if r.CreatedAt, err = parseTime(created); err != nil {
		return domain.DecayRule{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.DecayRule{}, err
	}
	return r, nil
}

// SetDecayRule creates or replaces the rule for a selector and enables it.
// Exactly one rule exists per selector; every change is recorded as a rule
// event.
func (t *Tx) SetDecayRule(ctx context.Context, rule domain.DecayRule, now time.Time) (domain.DecayRule, error) {
	if err := rule.Validate(); err != nil {
		return domain.DecayRule{}, err
	}
	canonical := rule.Selector.Canonical()
	keys, err := encodeJSON(append([]string{}, rule.Selector.Keys...))
	if err != nil {
		return domain.DecayRule{}, err
	}
	existing, found, err := t.decayRuleBySelector(ctx, canonical)
	if err != nil {
		return domain.DecayRule{}, err
	}
	stamp := formatTime(now)
	action := domain.RuleActivated
	if found {
		if existing.Enabled {
			action = domain.RuleUpdated
		}
		if _, err := t.exec(ctx, builder.Update("decay_rules").
			Set("inactivity_days", rule.InactivityDays).
			Set("fraction", rule.Fraction).
			Set("floor", rule.Floor).
			Set("enabled", 1).
			Set("updated_at", stamp).
			Where(sq.Eq{"id": existing.ID})); err != nil {
			return domain.DecayRule{}, wrapConstraint(fmt.Errorf("update decay rule: %w", err), "rule", "value out of range")
		}
		rule.ID = existing.ID
	} else {
		res, err := t.exec(ctx, builder.Insert("decay_rules").
			Columns("selector", "category", "entity_keys", "inactivity_days", "fraction", "floor", "enabled", "created_at", "updated_at").
			Values(canonical, rule.Selector.Category, keys, rule.InactivityDays, rule.Fraction, rule.Floor, 1, stamp, stamp))
		if err != nil {
			return domain.DecayRule{}, wrapConstraint(fmt.Errorf("insert decay rule: %w", err), "rule", "value out of range")
		}
		if rule.ID, err = res.LastInsertId(); err != nil {
			return domain.DecayRule{}, fmt.Errorf("decay rule id: %w", err)
		}
	}
	if err := t.appendRuleEvent(ctx, rule.ID, canonical, action, now); err != nil {
		return domain.DecayRule{}, err
	}
	return t.GetDecayRule(ctx, rule.ID)
}

// DisableDecayRule deactivates the rule for selector.
func (t *Tx) DisableDecayRule(ctx context.Context, selector domain.DecaySelector, now time.Time) (domain.DecayRule, error) {
	canonical := selector.Canonical()
	rule, found, err := t.decayRuleBySelector(ctx, canonical)
	if err != nil {
		return domain.DecayRule{}, err
	}
	if !found {
		return domain.DecayRule{}, domain.NotFoundf("decay rule %s", canonical)
	}
	if !rule.Enabled {
		return rule, nil
	}
	if _, err := t.exec(ctx, builder.Update("decay_rules").
		Set("enabled", 0).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": rule.ID})); err != nil {
		return domain.DecayRule{}, fmt.Errorf("disable decay rule: %w", err)
	}
	if err := t.appendRuleEvent(ctx, rule.ID, canonical, domain.RuleDeactivated, now); err != nil {
		return domain.DecayRule{}, err
	}
	return t.GetDecayRule(ctx, rule.ID)
}

// GetDecayRule loads one rule.
func (t *Tx) GetDecayRule(ctx context.Context, id int64) (domain.DecayRule, error) {
	row, err := t.queryRow(ctx, builder.Select(ruleColumns...).From("decay_rules").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.DecayRule{}, err
	}
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DecayRule{}, domain.NotFoundf("decay rule %d", id)
	}
	if err != nil {
		return domain.DecayRule{}, fmt.Errorf("get decay rule: %w", err)
	}
	return rule, nil
}

func (t *Tx) decayRuleBySelector(ctx context.Context, canonical string) (domain.DecayRule, bool, error) {
	row, err := t.queryRow(ctx, builder.Select(ruleColumns...).From("decay_rules").Where(sq.Eq{"selector": canonical}))
	if err != nil {
		return domain.DecayRule{}, false, err
	}
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DecayRule{}, false, nil
	}
	if err != nil {
		return domain.DecayRule{}, false, fmt.Errorf("decay rule by selector: %w", err)
	}
	return rule, true, nil
}

// ListDecayRules returns rules in creation order.
func (t *Tx) ListDecayRules(ctx context.Context, enabledOnly bool) ([]domain.DecayRule, error) {
	q := builder.Select(ruleColumns...).From("decay_rules").OrderBy("id")
	if enabledOnly {
		q = q.Where(sq.Eq{"enabled": 1})
	}
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list decay rules: %w", err)
	}
	defer rows.Close()
	var rules []domain.DecayRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decay rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (t *Tx) appendRuleEvent(ctx context.Context, ruleID int64, selector, action string, at time.Time) error {
	if _, err := t.exec(ctx, builder.Insert("decay_rule_events").
		Columns("rule_id", "selector", "action", "at").
		Values(ruleID, selector, action, formatTime(at))); err != nil {
		return fmt.Errorf("record rule event: %w", err)
	}
	return nil
}

// RuleEvents returns the activation history of decay rules oldest first.
func (t *Tx) RuleEvents(ctx context.Context) ([]domain.DecayRuleEvent, error) {
	rows, err := t.query(ctx, builder.Select("id", "rule_id", "selector", "action", "at").
		From("decay_rule_events").OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("rule events: %w", err)
	}
	defer rows.Close()
	var events []domain.DecayRuleEvent
	for rows.Next() {
		var (
			ev domain.DecayRuleEvent
			at string
		)
		if err := rows.Scan(&ev.ID, &ev.RuleID, &ev.Selector, &ev.Action, &at); err != nil {
			return nil, fmt.Errorf("scan rule event: %w", err)
		}
		if ev.At, err = parseTime(at); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
