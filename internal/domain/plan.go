package domain

import "time"

// PlanStep is one book of a preparation plan with the gap it addresses.
type PlanStep struct {
	BookID    int64  `json:"book_id" yaml:"book_id"`
	Rationale GapTag `json:"rationale" yaml:"rationale"`
}

// PreparationPlan is an ordered, bounded list of books predicted to close
// the gaps to a target.
type PreparationPlan struct {
	ID             string     `json:"id" yaml:"id"`
	TargetBookID   int64      `json:"target_book_id" yaml:"target_book_id"`
	Steps          []PlanStep `json:"steps" yaml:"steps"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	DurationDays   int        `json:"duration_days" yaml:"duration_days"`
	ProjectedScore int        `json:"projected_score" yaml:"projected_score"`
	Status         PlanStatus `json:"status" yaml:"status"`
}

// BookIDs returns the plan's book ids in order.
func (p PreparationPlan) BookIDs() []int64 {
	out := make([]int64, len(p.Steps))
	for i, step := range p.Steps {
		out[i] = step.BookID
	}
	return out
}
