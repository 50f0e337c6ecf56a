package domain

import (
	"fmt"
	"time"
)

// FactorBreakdown is the fixed-shape factor record produced by the scorer.
type FactorBreakdown struct {
	ComplexityMatch      int `json:"complexity_match" yaml:"complexity_match"`
	InterestAlignment    int `json:"interest_alignment" yaml:"interest_alignment"`
	CompletionLikelihood int `json:"completion_likelihood" yaml:"completion_likelihood"`
	EnjoymentPotential   int `json:"enjoyment_potential" yaml:"enjoyment_potential"`
	GrowthOpportunity    int `json:"growth_opportunity" yaml:"growth_opportunity"`
}

// ScoreResult is the scorer output.
type ScoreResult struct {
	Score          int             `json:"score" yaml:"score"`
	Recommendation Recommendation  `json:"recommendation" yaml:"recommendation"`
	Factors        FactorBreakdown `json:"factors" yaml:"factors"`
	Gaps           []GapTag        `json:"gaps" yaml:"gaps"`
	Strengths      []StrengthTag   `json:"strengths" yaml:"strengths"`
}

// HasGap reports whether tag is among the result's gaps.
func (r ScoreResult) HasGap(tag GapTag) bool {
	for _, g := range r.Gaps {
		if g == tag {
			return true
		}
	}
	return false
}

// HasStrength reports whether tag is among the result's strengths.
func (r ScoreResult) HasStrength(tag StrengthTag) bool {
	for _, s := range r.Strengths {
		if s == tag {
			return true
		}
	}
	return false
}

// DeferredTarget is a book the reader intends to read later.
type DeferredTarget struct {
	ID           int64        `json:"id" yaml:"id"`
	BookID       int64        `json:"book_id" yaml:"book_id"`
	AddedAt      time.Time    `json:"added_at" yaml:"added_at"`
	Note         string       `json:"note" yaml:"note"`
	ReminderMode ReminderMode `json:"reminder_mode" yaml:"reminder_mode"`
	CachedScore  int          `json:"cached_score" yaml:"cached_score"`
	Status       TargetStatus `json:"status" yaml:"status"`
	PlanID       string       `json:"plan_id" yaml:"plan_id"`
	BecameReady  *time.Time   `json:"became_ready,omitempty" yaml:"became_ready,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Checkpoint is an immutable record of one scoring of a deferred target.
type Checkpoint struct {
	ID          int64           `json:"id" yaml:"id"`
	TargetID    int64           `json:"target_id" yaml:"target_id"`
	At          time.Time       `json:"at" yaml:"at"`
	Score       int             `json:"score" yaml:"score"`
	Factors     FactorBreakdown `json:"factors" yaml:"factors"`
	Gaps        []GapTag        `json:"gaps,omitempty" yaml:"gaps,omitempty"`
	BooksHelped []int64         `json:"books_helped,omitempty" yaml:"books_helped,omitempty"`
	Delta       int             `json:"delta" yaml:"delta"`
	Trigger     string          `json:"trigger" yaml:"trigger"`
}

// ValidateCheckpointOrder checks that checkpoint timestamps strictly increase.
func ValidateCheckpointOrder(targetID int64, checkpoints []Checkpoint) error {
	for i := 1; i < len(checkpoints); i++ {
		if !checkpoints[i].At.After(checkpoints[i-1].At) {
			return &CorruptError{
				Entity: "target",
				ID:     fmt.Sprintf("%d", targetID),
				Detail: fmt.Sprintf("checkpoint %d at %s does not follow checkpoint %d at %s",
					checkpoints[i].ID, checkpoints[i].At.Format(time.RFC3339Nano),
					checkpoints[i-1].ID, checkpoints[i-1].At.Format(time.RFC3339Nano)),
				RepairHint: "delete the target and defer it again to rebuild its checkpoint history",
			}
		}
	}
	return nil
}

// Notification is an outbox row produced by a became-ready edge.
type Notification struct {
	ID          string     `json:"id" yaml:"id"`
	TargetID    int64      `json:"target_id" yaml:"target_id"`
	BookID      int64      `json:"book_id" yaml:"book_id"`
	Kind        string     `json:"kind" yaml:"kind"`
	Score       int        `json:"score" yaml:"score"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" yaml:"delivered_at,omitempty"`
}

// NotificationBecameReady is the only notification kind the engine emits.
const NotificationBecameReady = "became_ready"
