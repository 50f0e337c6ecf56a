package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MasteryEntity is anything carrying a decaying mastery level: a rated book
// or a skill/topic.
type MasteryEntity struct {
	Key           string     `json:"key" yaml:"key"`
	Kind          EntityKind `json:"kind" yaml:"kind"`
	Category      string     `json:"category" yaml:"category"`
	Mastery       int        `json:"mastery" yaml:"mastery"`
	LastTouchedAt time.Time  `json:"last_touched_at" yaml:"last_touched_at"`
	LastDecayAt   *time.Time `json:"last_decay_at,omitempty" yaml:"last_decay_at,omitempty"`
}

// BookEntityKey is the mastery key for a catalog book.
func BookEntityKey(bookID int64) string {
	return fmt.Sprintf("%s:%d", EntityBook, bookID)
}

// ParseEntityKey splits "kind:name" and validates the kind.
func ParseEntityKey(key string) (EntityKind, string, error) {
	kind, name, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || name == "" {
		return "", "", NewValidationError("entity", fmt.Sprintf("expected kind:name, got %q", key))
	}
	k := EntityKind(strings.ToLower(kind))
	if !k.IsValid() {
		return "", "", NewValidationError("entity", fmt.Sprintf("unknown entity kind %q", kind))
	}
	return k, name, nil
}

// DecaySelector picks entities either by category or by an explicit key set.
type DecaySelector struct {
	Category string   `json:"category" yaml:"category"`
	Keys     []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// Canonical renders the selector in its stored form. Explicit key sets are
// sorted so the same set always maps to the same rule.
func (s DecaySelector) Canonical() string {
	if len(s.Keys) > 0 {
		keys := append([]string(nil), s.Keys...)
		sort.Strings(keys)
		return "ids:" + strings.Join(keys, ",")
	}
	return "category:" + s.Category
}

// ParseDecaySelector parses "category:<name>" or "ids:<key>,<key>".
func ParseDecaySelector(raw string) (DecaySelector, error) {
	prefix, rest, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || strings.TrimSpace(rest) == "" {
		return DecaySelector{}, NewValidationError("selector", fmt.Sprintf("expected category:<name> or ids:<keys>, got %q", raw))
	}
	switch strings.ToLower(prefix) {
	case "category":
		return DecaySelector{Category: strings.ToLower(strings.TrimSpace(rest))}, nil
	case "ids":
		var keys []string
		for _, part := range strings.Split(rest, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, _, err := ParseEntityKey(part); err != nil {
				return DecaySelector{}, err
			}
			keys = append(keys, part)
		}
		if len(keys) == 0 {
			return DecaySelector{}, NewValidationError("selector", "ids selector needs at least one key")
		}
		sort.Strings(keys)
		return DecaySelector{Keys: keys}, nil
	default:
		return DecaySelector{}, NewValidationError("selector", fmt.Sprintf("unknown selector type %q", prefix))
	}
}

// DecayRule reduces mastery of matching entities after a period of inactivity.
type DecayRule struct {
	ID             int64         `json:"id" yaml:"id"`
	Selector       DecaySelector `json:"selector" yaml:"selector"`
	InactivityDays int           `json:"inactivity_days" yaml:"inactivity_days"`
	Fraction       float64       `json:"fraction" yaml:"fraction"`
	Floor          int           `json:"floor" yaml:"floor"`
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	CreatedAt      time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the rule parameters.
func (r DecayRule) Validate() error {
	var errs []FieldError
	if r.InactivityDays < 1 {
		errs = append(errs, FieldError{Field: "inactivity_days", Message: "must be at least 1"})
	}
	if r.Fraction <= 0 || r.Fraction > 0.5 {
		errs = append(errs, FieldError{Field: "fraction", Message: "must be in (0, 0.5] (got " + strconv.FormatFloat(r.Fraction, 'g', -1, 64) + ")"})
	}
	if r.Floor < 0 {
		errs = append(errs, FieldError{Field: "floor", Message: "must not be negative"})
	}
	if r.Selector.Category == "" && len(r.Selector.Keys) == 0 {
		errs = append(errs, FieldError{Field: "selector", Message: "required"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// DecayAudit is one append-only mastery change record.
type DecayAudit struct {
	ID        int64      `json:"id" yaml:"id"`
	EntityKey string     `json:"entity_key" yaml:"entity_key"`
	At        time.Time  `json:"at" yaml:"at"`
	OldValue  int        `json:"old_value" yaml:"old_value"`
	NewValue  int        `json:"new_value" yaml:"new_value"`
	Cause     AuditCause `json:"cause" yaml:"cause"`
	Note      string     `json:"note" yaml:"note"`
	RuleID    *int64     `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`
}

// DecayRuleEvent audits rule activation and deactivation.
type DecayRuleEvent struct {
	ID       int64
	RuleID   int64
	Selector string
	Action   string
	At       time.Time
}

// Rule event actions.
const (
	RuleActivated   = "activated"
	RuleDeactivated = "deactivated"
	RuleUpdated     = "updated"
)
