// Package planner builds preparation paths: short ordered reading lists
// predicted to close the gaps between the reader and a target book.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/profile"
	"shelfmind/internal/scoring"
	"shelfmind/internal/store"
)

// Options bounds plan construction.
type Options struct {
	MinSize        int
	MaxSize        int
	MinBookScore   int
	PaceFloor      float64
	PaceWindow     time.Duration
	AssumedRating  int
	ReadyThreshold int
}

// OptionsFromConfig extracts planner options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinSize:        cfg.Plan.MinSize,
		MaxSize:        cfg.Plan.MaxSize,
		MinBookScore:   cfg.Plan.MinBookScore,
		PaceFloor:      cfg.Plan.ReaderPaceFloorPagesPerDay,
		PaceWindow:     time.Duration(cfg.Plan.PaceWindowDays) * 24 * time.Hour,
		AssumedRating:  cfg.Plan.AssumedRating,
		ReadyThreshold: cfg.Scorer.Thresholds[0],
	}
}

// minAffinity is the style affinity a low-completion candidate needs.
const minAffinity = 0.6

// Planner selects plan candidates from the catalog.
type Planner struct {
	profiles profile.Options
	scorer   scoring.Options
	opts     Options
	logger   *slog.Logger
}

// New constructs a Planner.
func New(profiles profile.Options, scorer scoring.Options, opts Options, logger *slog.Logger) *Planner {
	return &Planner{
		profiles: profiles,
		scorer:   scorer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "planner"),
	}
}

type candidate struct {
	book       domain.Book
	complexity int
	rationale  domain.GapTag
	novelty    string
	own        int
}

// Build computes a plan for target against the profile in current. It does
// not persist anything.
func (p *Planner) Build(ctx context.Context, tx *store.Tx, target domain.Book, current profile.Result, now time.Time) (domain.PreparationPlan, error) {
	res := scoring.Score(target, current.Profile, p.scorer)
	if len(res.Gaps) == 0 {
		return domain.PreparationPlan{}, domain.NewValidationError("target", fmt.Sprintf("%q has no readiness gaps to prepare for", target.Title))
	}

	exclude := []int64{target.ID}
	for _, e := range current.State.Entries {
		exclude = append(exclude, e.BookID)
	}

	pool, err := p.candidates(ctx, tx, target, res.Gaps, current.Profile, exclude)
	if err != nil {
		return domain.PreparationPlan{}, err
	}
	logger := p.logger.With(logging.Int64(logging.FieldBookID, target.ID))
	logger.Debug("plan candidates collected",
		logging.Int("candidates", len(pool)),
		logging.Any("gaps", res.Gaps),
	)

	selected, projected := p.selectSteps(target, current.State, res.Score, pool)
	if len(selected) < p.opts.MinSize {
		return domain.PreparationPlan{}, domain.NotFoundf("catalog has %d preparatory books for %q, need at least %d", len(selected), target.Title, p.opts.MinSize)
	}
	if projected < p.opts.ReadyThreshold {
		logger.Info("plan falls short of ready",
			logging.Int("projected_score", projected),
			logging.Int("steps", len(selected)),
		)
	}

	pages, err := tx.RecentCompletedPages(ctx, now.Add(-p.opts.PaceWindow))
	if err != nil {
		return domain.PreparationPlan{}, err
	}
	plan := domain.PreparationPlan{
		TargetBookID:   target.ID,
		CreatedAt:      now,
		DurationDays:   p.duration(selected, pages),
		ProjectedScore: projected,
		Status:         domain.PlanActive,
	}
	for _, c := range selected {
		plan.Steps = append(plan.Steps, domain.PlanStep{BookID: c.book.ID, Rationale: c.rationale})
	}
	return plan, nil
}

// Save replaces the active plan of target with plan and links it.
func (p *Planner) Save(ctx context.Context, tx *store.Tx, target domain.DeferredTarget, plan domain.PreparationPlan) (domain.PreparationPlan, error) {
	if err := tx.AbandonActivePlans(ctx, target.BookID); err != nil {
		return domain.PreparationPlan{}, err
	}
	stored, err := tx.InsertPlan(ctx, plan)
	if err != nil {
		return domain.PreparationPlan{}, err
	}
	if err := tx.SetTargetPlan(ctx, target.ID, stored.ID, plan.CreatedAt); err != nil {
		return domain.PreparationPlan{}, err
	}
	p.logger.Info("preparation plan saved",
		logging.String(logging.FieldPlanID, stored.ID),
		logging.Int64(logging.FieldTargetID, target.ID),
		logging.Int("steps", len(stored.Steps)),
		logging.Int("projected_score", stored.ProjectedScore),
		logging.Int("duration_days", stored.DurationDays),
	)
	return stored, nil
}

// candidates runs one catalog query per gap and keeps books the reader is
// ready for today. A book found by several gaps keeps the first, largest one.
func (p *Planner) candidates(ctx context.Context, tx *store.Tx, target domain.Book, gaps []domain.GapTag, prof domain.Profile, exclude []int64) ([]candidate, error) {
	f := target.Features.Normalized()
	seen := map[int64]bool{}
	var out []candidate
	for _, gap := range gaps {
		q, ok := p.query(gap, target, f, prof)
		if !ok {
			continue
		}
		q.ExcludeIDs = exclude
		books, err := tx.CandidateBooks(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("candidates for %s: %w", gap, err)
		}
		for _, book := range books {
			if seen[book.ID] {
				continue
			}
			c, ok := p.admit(book, gap, f, prof)
			if !ok {
				continue
			}
			seen[book.ID] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *Planner) query(gap domain.GapTag, target domain.Book, f domain.Features, prof domain.Profile) (store.CandidateQuery, bool) {
	switch gap {
	case domain.GapComplexity:
		c, ok := f.ComplexityValue()
		if !ok {
			return store.CandidateQuery{}, false
		}
		return store.CandidateQuery{ComplexityAbove: ptr(prof.Comfort()), ComplexityBelow: ptr(float64(c))}, true
	case domain.GapLength:
		pages, ok := target.Pages()
		tolerance, known := prof.LengthTolerance()
		if !ok || !known {
			return store.CandidateQuery{}, false
		}
		return store.CandidateQuery{PagesAbove: ptr(tolerance), PagesBelow: ptr(float64(pages))}, true
	case domain.GapStyleUnfamiliar:
		if !f.Style.IsKnown() {
			return store.CandidateQuery{}, false
		}
		return store.CandidateQuery{Style: f.Style}, true
	case domain.GapThemeMismatch:
		fresh := unfamiliarThemes(f, prof)
		if len(fresh) == 0 {
			return store.CandidateQuery{}, false
		}
		return store.CandidateQuery{AnyTheme: fresh, RequireThemeOf: prof.TopThemes(p.scorer.TopThemes)}, true
	case domain.GapLowCompletionRate:
		return store.CandidateQuery{}, true
	default:
		return store.CandidateQuery{}, false
	}
}

// admit applies the per-book filters that SQL does not express and derives
// the novelty key of the book's contribution.
func (p *Planner) admit(book domain.Book, gap domain.GapTag, target domain.Features, prof domain.Profile) (candidate, bool) {
	f := book.Features.Normalized()
	complexity, ok := f.ComplexityValue()
	if !ok {
		return candidate{}, false
	}
	own := scoring.Score(book, prof, p.scorer)
	if own.Score < p.opts.MinBookScore {
		return candidate{}, false
	}
	c := candidate{book: book, complexity: complexity, rationale: gap, own: own.Score}
	switch gap {
	case domain.GapComplexity, domain.GapStyleUnfamiliar:
		c.novelty = string(gap) + ":" + strconv.Itoa(complexity)
	case domain.GapLength:
		pages, _ := book.Pages()
		c.novelty = string(gap) + ":" + strconv.Itoa(pages/100)
	case domain.GapThemeMismatch:
		added := ""
		for _, theme := range unfamiliarThemes(target, prof) {
			if f.HasTheme(theme) {
				added = theme
				break
			}
		}
		c.novelty = string(gap) + ":" + added
	case domain.GapLowCompletionRate:
		affinity, known := prof.Affinity(f.Style)
		if !known || affinity < minAffinity || own.HasGap(domain.GapLength) || own.HasGap(domain.GapStyleUnfamiliar) {
			return candidate{}, false
		}
		c.novelty = string(gap) + ":" + string(f.Style)
	}
	return c, true
}

// selectSteps walks candidates in ascending complexity and keeps each one
// that raises the projected target score and contributes something no
// earlier step did. It stops once the projection reaches ready with enough
// steps, or at the size cap.
func (p *Planner) selectSteps(target domain.Book, state profile.State, baseline int, pool []candidate) ([]candidate, int) {
	gains := make(map[int64]int, len(pool))
	for _, c := range pool {
		gains[c.book.ID] = p.project(target, state, []candidate{c}) - baseline
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].complexity != pool[j].complexity {
			return pool[i].complexity < pool[j].complexity
		}
		if gains[pool[i].book.ID] != gains[pool[j].book.ID] {
			return gains[pool[i].book.ID] > gains[pool[j].book.ID]
		}
		return pool[i].book.ID < pool[j].book.ID
	})

	var (
		selected  []candidate
		used      = map[string]bool{}
		projected = baseline
	)
	for _, c := range pool {
		if len(selected) >= p.opts.MaxSize {
			break
		}
		if projected >= p.opts.ReadyThreshold && len(selected) >= p.opts.MinSize {
			break
		}
		if used[c.novelty] {
			continue
		}
		next := p.project(target, state, append(append([]candidate{}, selected...), c))
		if next <= projected {
			continue
		}
		selected = append(selected, c)
		used[c.novelty] = true
		projected = next
	}
	return selected, projected
}

// project scores target against the profile that results from completing
// steps at the assumed rating right after the latest history event.
func (p *Planner) project(target domain.Book, state profile.State, steps []candidate) int {
	at := state.AsOf()
	nextID := state.LastEventID()
	for _, c := range steps {
		nextID++
		entry := profile.EntryFromHistory(domain.HistoryEntry{
			Event: domain.CompletionEvent{
				ID:     nextID,
				BookID: c.book.ID,
				At:     at,
				Status: domain.CompletionCompleted,
				Rating: domain.IntPtr(p.opts.AssumedRating),
			},
			Pages:    c.book.PageCount,
			Features: c.book.Features,
		})
		state = profile.Fold(state, entry, p.profiles)
	}
	return scoring.Score(target, profile.Derive(state, p.profiles), p.scorer).Score
}

// duration estimates reading days from the median recent pages per
// completed book, floored at the configured pace.
func (p *Planner) duration(steps []candidate, recent []int) int {
	pace := p.opts.PaceFloor
	if m := median(recent); m > pace {
		pace = m
	}
	total := 0
	for _, c := range steps {
		if pages, ok := c.book.Pages(); ok {
			total += pages
		}
	}
	if total == 0 || pace <= 0 {
		return 1
	}
	return int(math.Ceil(float64(total) / pace))
}

func median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int{}, values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

// unfamiliarThemes lists target themes that are not among the favorites.
func unfamiliarThemes(f domain.Features, prof domain.Profile) []string {
	if !f.ThemesKnown {
		return nil
	}
	var out []string
	for _, theme := range f.Themes {
		if !prof.IsFavoriteTheme(theme) {
			out = append(out, theme)
		}
	}
	return out
}

func ptr(v float64) *float64 { return &v }
