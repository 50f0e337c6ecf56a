package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"shelfmind/internal/domain"
)

var vocabColumns = []string{
	"id", "word", "definition", "source_book_id", "repetitions", "interval_days", "ease_scaled",
	"next_due", "successes", "failures", "last_reviewed_at", "version", "created_at",
}

func (t *Tx) scanVocabulary(scanner rowScanner) (domain.VocabularyItem, error) {
	var (
		item               domain.VocabularyItem
		source             sql.NullInt64
		nextDue, createdAt string
		lastReviewed       sql.NullString
	)
	if err := scanner.Scan(&item.ID, &item.Word, &item.Definition, &source, &item.State.Repetitions,
		&item.State.IntervalDays, &item.State.EaseScaled, &nextDue, &item.Successes, &item.Failures,
		&lastReviewed, &item.Version, &createdAt); err != nil {
		return domain.VocabularyItem{}, err
	}
	var err error
	item.SourceBookID = int64Ptr(source)
	if item.NextDue, err = parseDate(nextDue, t.loc); err != nil {
		return domain.VocabularyItem{}, err
	}
	if item.LastReviewed, err = parseNullTime(lastReviewed); err != nil {
		return domain.VocabularyItem{}, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.VocabularyItem{}, err
	}
	return item, nil
}

// InsertVocabulary adds a new item. Words are unique ignoring case.
func (t *Tx) InsertVocabulary(ctx context.Context, item domain.VocabularyItem) (domain.VocabularyItem, error) {
	item.Word = strings.TrimSpace(item.Word)
	if item.Word == "" {
		return domain.VocabularyItem{}, domain.NewValidationError("word", "required")
	}
	if item.SourceBookID != nil {
		if err := t.requireBook(ctx, *item.SourceBookID); err != nil {
			return domain.VocabularyItem{}, err
		}
	}
	res, err := t.exec(ctx, builder.Insert("vocabulary_items").
		Columns("word", "definition", "source_book_id", "repetitions", "interval_days", "ease_scaled",
			"next_due", "version", "created_at").
		Values(item.Word, item.Definition, nullInt64(item.SourceBookID), item.State.Repetitions,
			item.State.IntervalDays, item.State.EaseScaled, formatDate(item.NextDue.In(t.loc)), 1, formatTime(item.CreatedAt)))
	if err != nil {
		return domain.VocabularyItem{}, wrapConstraint(fmt.Errorf("insert vocabulary: %w", err), "word", "word already exists")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.VocabularyItem{}, fmt.Errorf("vocabulary id: %w", err)
	}
	return t.GetVocabulary(ctx, id)
}

// GetVocabulary loads one item.
func (t *Tx) GetVocabulary(ctx context.Context, id int64) (domain.VocabularyItem, error) {
	row, err := t.queryRow(ctx, builder.Select(vocabColumns...).From("vocabulary_items").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.VocabularyItem{}, err
	}
	item, err := t.scanVocabulary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VocabularyItem{}, domain.NotFoundf("vocabulary item %d", id)
	}
	if err != nil {
		return domain.VocabularyItem{}, fmt.Errorf("get vocabulary: %w", err)
	}
	return item, nil
}

// ReviewUpdate is the outcome of one review applied to an item read at
// ExpectedVersion.
type ReviewUpdate struct {
	ItemID          int64
	ExpectedVersion int64
	Quality         int
	State           domain.SM2State
	NextDue         time.Time
	ReviewedAt      time.Time
	Success         bool
}

// ScheduleReview writes the new SM-2 state of an item. The write only
// applies when the stored version still equals ExpectedVersion; otherwise it
// fails with domain.ErrConflict so the read-modify-write can be retried.
func (t *Tx) ScheduleReview(ctx context.Context, u ReviewUpdate) (domain.VocabularyItem, error) {
	if u.Quality < 0 || u.Quality > 5 {
		return domain.VocabularyItem{}, domain.NewValidationError("quality", fmt.Sprintf("must be in 0..5 (got %d)", u.Quality))
	}
	successes, failures := sq.Expr("successes"), sq.Expr("failures")
	if u.Success {
		successes = sq.Expr("successes + 1")
	} else {
		failures = sq.Expr("failures + 1")
	}
	res, err := t.exec(ctx, builder.Update("vocabulary_items").
		Set("repetitions", u.State.Repetitions).
		Set("interval_days", u.State.IntervalDays).
		Set("ease_scaled", u.State.EaseScaled).
		Set("next_due", formatDate(u.NextDue.In(t.loc))).
		Set("last_reviewed_at", formatTime(u.ReviewedAt)).
		Set("successes", successes).
		Set("failures", failures).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": u.ItemID, "version": u.ExpectedVersion}))
	if err != nil {
		return domain.VocabularyItem{}, wrapConstraint(fmt.Errorf("schedule review: %w", err), "state", "rejected by store constraints")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := t.GetVocabulary(ctx, u.ItemID); err != nil {
			return domain.VocabularyItem{}, err
		}
		return domain.VocabularyItem{}, fmt.Errorf("vocabulary item %d changed since version %d: %w", u.ItemID, u.ExpectedVersion, domain.ErrConflict)
	}
	if _, err := t.exec(ctx, builder.Insert("vocabulary_reviews").
		Columns("item_id", "reviewed_at", "quality", "repetitions", "interval_days", "ease_scaled").
		Values(u.ItemID, formatTime(u.ReviewedAt), u.Quality, u.State.Repetitions, u.State.IntervalDays, u.State.EaseScaled)); err != nil {
		return domain.VocabularyItem{}, fmt.Errorf("record review: %w", err)
	}
	return t.GetVocabulary(ctx, u.ItemID)
}

// PopDueReviews returns items due on or before asOf, ordered by due date,
// then repetitions, then id. Nothing is removed; an item leaves the queue
// once reviewed.
func (t *Tx) PopDueReviews(ctx context.Context, asOf time.Time, limit uint64) ([]domain.VocabularyItem, error) {
	q := builder.Select(vocabColumns...).From("vocabulary_items").
		Where(sq.LtOrEq{"next_due": formatDate(asOf.In(t.loc))}).
		OrderBy("next_due", "repetitions", "id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("due reviews: %w", err)
	}
	defer rows.Close()
	var items []domain.VocabularyItem
	for rows.Next() {
		item, err := t.scanVocabulary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vocabulary: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// VocabularyStats summarizes the vocabulary sub-store. Items with at least
// learnedReps consecutive successes count as learned.
func (t *Tx) VocabularyStats(ctx context.Context, asOf time.Time, learnedReps int) (domain.VocabularyStats, error) {
	row, err := t.queryRow(ctx, builder.Select("COUNT(*)").
		Column(sq.Expr("COALESCE(SUM(CASE WHEN next_due <= ? THEN 1 ELSE 0 END), 0)", formatDate(asOf.In(t.loc)))).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN repetitions >= ? THEN 1 ELSE 0 END), 0)", learnedReps)).
		Column("COALESCE(SUM(successes), 0)").
		Column("COALESCE(SUM(failures), 0)").
		From("vocabulary_items"))
	if err != nil {
		return domain.VocabularyStats{}, err
	}
	var stats domain.VocabularyStats
	if err := row.Scan(&stats.Total, &stats.Due, &stats.Learned, &stats.Successes, &stats.Failures); err != nil {
		return domain.VocabularyStats{}, fmt.Errorf("vocabulary stats: %w", err)
	}
	return stats, nil
}
