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

// HistoryFilter bounds a history read. Zero values do not constrain.
type HistoryFilter struct {
	// Upto includes events at or before this instant.
	Upto *time.Time
	// AfterID includes only events stored after this event id.
	AfterID int64
}

// AppendCompletion records a completion event. Timestamps must not go
// backwards: the reading history is ordered by emission. The current profile
// snapshot stops being current.
func (t *Tx) AppendCompletion(ctx context.Context, e domain.CompletionEvent, now time.Time) (domain.CompletionEvent, error) {
	if e.Status != domain.CompletionCompleted {
		e.Rating = nil
	}
	if err := e.Validate(); err != nil {
		return domain.CompletionEvent{}, err
	}
	if err := t.requireBook(ctx, e.BookID); err != nil {
		return domain.CompletionEvent{}, err
	}
	last, ok, err := t.LastCompletion(ctx)
	if err != nil {
		return domain.CompletionEvent{}, err
	}
	if ok && e.At.Before(last.At) {
		return domain.CompletionEvent{}, domain.NewValidationError("timestamp",
			fmt.Sprintf("must not precede the latest completion at %s", last.At.Format(time.RFC3339)))
	}

	res, err := t.exec(ctx, builder.Insert("completion_events").
		Columns("book_id", "completed_at", "status", "rating", "pages_read", "created_at").
		Values(e.BookID, formatTime(e.At), string(e.Status), nullInt(e.Rating), nullInt(e.PagesRead), formatTime(now)))
	if err != nil {
		return domain.CompletionEvent{}, wrapConstraint(fmt.Errorf("insert completion: %w", err), "completion", "rejected by store constraints")
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return domain.CompletionEvent{}, fmt.Errorf("completion id: %w", err)
	}
	e.At = e.At.UTC()
	if err := t.retireCurrentSnapshot(ctx, e.At); err != nil {
		return domain.CompletionEvent{}, err
	}
	return e, nil
}

const eventColumns = "e.id, e.book_id, e.completed_at, e.status, e.rating, e.pages_read"

func scanEvent(scanner rowScanner, extra ...any) (domain.CompletionEvent, error) {
	var (
		e           domain.CompletionEvent
		at, status  string
		rating, pgs sql.NullInt64
	)
	dest := append([]any{&e.ID, &e.BookID, &at, &status, &rating, &pgs}, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return domain.CompletionEvent{}, err
	}
	parsed, err := parseTime(at)
	if err != nil {
		return domain.CompletionEvent{}, err
	}
	e.At = parsed
	e.Status = domain.CompletionStatus(status)
	e.Rating = intPtr(rating)
	e.PagesRead = intPtr(pgs)
	return e, nil
}

func historyQuery(filter HistoryFilter) sq.SelectBuilder {
	q := builder.Select(eventColumns).From("completion_events e").OrderBy("e.id")
	if filter.Upto != nil {
		q = q.Where(sq.LtOrEq{"e.completed_at": formatTime(*filter.Upto)})
	}
	if filter.AfterID > 0 {
		q = q.Where(sq.Gt{"e.id": filter.AfterID})
	}
	return q
}

// ReadHistory returns completion events in history order.
func (t *Tx) ReadHistory(ctx context.Context, filter HistoryFilter) ([]domain.CompletionEvent, error) {
	rows, err := t.query(ctx, historyQuery(filter))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()
	var events []domain.CompletionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return events, nil
}

// ReadHistoryEntries returns completion events joined with the current
// page count and features of their books.
func (t *Tx) ReadHistoryEntries(ctx context.Context, filter HistoryFilter) ([]domain.HistoryEntry, error) {
	events, err := t.ReadHistory(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.BookID
	}
	books, err := t.BooksByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, len(events))
	for i, e := range events {
		book := books[e.BookID]
		entries[i] = domain.HistoryEntry{Event: e, Pages: book.PageCount, Features: book.Features}
	}
	return entries, nil
}

// LastCompletion returns the latest event in history order.
func (t *Tx) LastCompletion(ctx context.Context) (domain.CompletionEvent, bool, error) {
	row, err := t.queryRow(ctx, builder.Select(eventColumns).From("completion_events e").OrderBy("e.id DESC").Limit(1))
	if err != nil {
		return domain.CompletionEvent{}, false, err
	}
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CompletionEvent{}, false, nil
	}
	if err != nil {
		return domain.CompletionEvent{}, false, fmt.Errorf("last completion: %w", err)
	}
	return e, true, nil
}

// CompletedBookIDsBetween lists ids of books with a completed event in
// (after, upto], in history order without duplicates.
func (t *Tx) CompletedBookIDsBetween(ctx context.Context, after *time.Time, upto time.Time) ([]int64, error) {
	q := builder.Select("e.book_id").From("completion_events e").
		Where(sq.Eq{"e.status": string(domain.CompletionCompleted)}).
		Where(sq.LtOrEq{"e.completed_at": formatTime(upto)}).
		OrderBy("e.id")
	if after != nil {
		q = q.Where(sq.Gt{"e.completed_at": formatTime(*after)})
	}
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("completed books: %w", err)
	}
	defer rows.Close()
	seen := map[int64]struct{}{}
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan book id: %w", err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentCompletedPages returns page counts of books completed at or after
// since, in history order. Books without a page count are skipped.
func (t *Tx) RecentCompletedPages(ctx context.Context, since time.Time) ([]int, error) {
	rows, err := t.query(ctx, builder.Select("b.page_count").
		From("completion_events e").
		Join("books b ON b.id = e.book_id").
		Where(sq.Eq{"e.status": string(domain.CompletionCompleted)}).
		Where(sq.GtOrEq{"e.completed_at": formatTime(since)}).
		Where(sq.NotEq{"b.page_count": nil}).
		OrderBy("e.id"))
	if err != nil {
		return nil, fmt.Errorf("recent pages: %w", err)
	}
	defer rows.Close()
	var pages []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan pages: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
