package engine

import (
	"context"
	"strings"

	"shelfmind/internal/decay"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/store"
)

// SetMastery records a manual mastery level for key ("skill:latin",
// "topic:stoicism", "book:12"), creating the entity when needed. A non-empty
// category is assigned to the entity.
func (e *Engine) SetMastery(ctx context.Context, key string, value int, note, category string) (domain.MasteryEntity, error) {
	return e.touch(ctx, key, value, domain.CauseManualEdit, note, category)
}

// ReviewMastery records that the reader revisited key and now rates their
// mastery at value.
func (e *Engine) ReviewMastery(ctx context.Context, key string, value int, note string) (domain.MasteryEntity, error) {
	return e.touch(ctx, key, value, domain.CauseReview, note, "")
}

func (e *Engine) touch(ctx context.Context, key string, value int, cause domain.AuditCause, note, category string) (domain.MasteryEntity, error) {
	key = strings.TrimSpace(key)
	category = strings.ToLower(strings.TrimSpace(category))
	var out domain.MasteryEntity
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		entity, err := decay.Touch(ctx, tx, key, value, cause, note, e.clock.Now())
		if err != nil {
			return err
		}
		if category != "" && category != entity.Category {
			if err := tx.SetEntityCategory(ctx, entity.Key, category); err != nil {
				return err
			}
			entity.Category = category
		}
		out = entity
		return nil
	})
	if err != nil {
		return domain.MasteryEntity{}, err
	}
	e.logger.Info("mastery recorded",
		logging.String(logging.FieldEntity, out.Key),
		logging.Int("mastery", out.Mastery),
		logging.String("cause", string(cause)),
	)
	return out, nil
}

// GetMastery loads one entity.
func (e *Engine) GetMastery(ctx context.Context, key string) (domain.MasteryEntity, error) {
	var out domain.MasteryEntity
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GetMasteryEntity(ctx, strings.TrimSpace(key))
		return err
	})
	return out, err
}

// ListMastery returns entities, restricted to category when set.
func (e *Engine) ListMastery(ctx context.Context, category string) ([]domain.MasteryEntity, error) {
	var out []domain.MasteryEntity
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListMasteryEntities(ctx, strings.ToLower(strings.TrimSpace(category)))
		return err
	})
	return out, err
}

// MasteryHistory returns the audit trail of key oldest first. A positive
// limit keeps the most recent rows; 0 means all rows.
func (e *Engine) MasteryHistory(ctx context.Context, key string, limit int) ([]domain.DecayAudit, error) {
	if limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	key = strings.TrimSpace(key)
	var out []domain.DecayAudit
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetMasteryEntity(ctx, key); err != nil {
			return err
		}
		var err error
		out, err = tx.MasteryHistory(ctx, key, uint64(limit))
		return err
	})
	return out, err
}

// DecayRuleInput configures a rule. Nil fields take the configured
// defaults.
type DecayRuleInput struct {
	Selector       string
	InactivityDays *int
	Fraction       *float64
	Floor          *int
}

// SetDecayRule creates or replaces the rule for a selector and enables it.
func (e *Engine) SetDecayRule(ctx context.Context, in DecayRuleInput) (domain.DecayRule, error) {
	selector, err := domain.ParseDecaySelector(in.Selector)
	if err != nil {
		return domain.DecayRule{}, err
	}
	rule := domain.DecayRule{
		Selector:       selector,
		InactivityDays: e.cfg.Decay.DefaultInactivityDays,
		Fraction:       e.cfg.Decay.DefaultFraction,
		Floor:          e.cfg.Decay.Floor,
		Enabled:        true,
	}
	if in.InactivityDays != nil {
		rule.InactivityDays = *in.InactivityDays
	}
	if in.Fraction != nil {
		rule.Fraction = *in.Fraction
	}
	if in.Floor != nil {
		rule.Floor = *in.Floor
	}
	var out domain.DecayRule
	err = e.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.SetDecayRule(ctx, rule, e.clock.Now())
		return err
	})
	if err != nil {
		return domain.DecayRule{}, err
	}
	e.logger.Info("decay rule set",
		logging.Int64(logging.FieldRuleID, out.ID),
		logging.String("selector", out.Selector.Canonical()),
		logging.Int("inactivity_days", out.InactivityDays),
		logging.Float64("fraction", out.Fraction),
		logging.Int("floor", out.Floor),
	)
	return out, nil
}

// DisableDecayRule deactivates the rule for a selector. The rule row and its
// history are kept.
func (e *Engine) DisableDecayRule(ctx context.Context, rawSelector string) (domain.DecayRule, error) {
	selector, err := domain.ParseDecaySelector(rawSelector)
	if err != nil {
		return domain.DecayRule{}, err
	}
	var out domain.DecayRule
	err = e.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.DisableDecayRule(ctx, selector, e.clock.Now())
		return err
	})
	return out, err
}

// ListDecayRules returns rules, only enabled ones when enabledOnly is set.
func (e *Engine) ListDecayRules(ctx context.Context, enabledOnly bool) ([]domain.DecayRule, error) {
	var out []domain.DecayRule
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListDecayRules(ctx, enabledOnly)
		return err
	})
	return out, err
}

// TickDecay applies every enabled rule once.
func (e *Engine) TickDecay(ctx context.Context) (decay.Report, error) {
	return e.decay.Tick(ctx)
}
