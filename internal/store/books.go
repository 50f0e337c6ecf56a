package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"shelfmind/internal/domain"
	"shelfmind/internal/textutil"
)

var bookColumns = []string{
	"b.id", "b.title", "b.author", "b.norm_title", "b.norm_author", "b.genre", "b.page_count",
	"b.isbn", "b.external_id", "b.stub", "b.complexity", "b.themes_known", "b.style", "b.structure",
	"b.character_vs_plot", "b.mood_energy", "b.mood_pacing", "b.mood_tone", "b.mood_complexity",
	"b.feature_confidence", "b.created_at", "b.updated_at",
}

func scanBook(scanner rowScanner) (domain.Book, error) {
	var (
		b                           domain.Book
		pages, complexity           sql.NullInt64
		isbn, externalID            sql.NullString
		stub, themesKnown           int
		style, structure            string
		cvp                         sql.NullFloat64
		energy, pacing, tone, moodC sql.NullString
		createdAt, updatedAt        string
	)
	if err := scanner.Scan(
		&b.ID, &b.Title, &b.Author, &b.NormTitle, &b.NormAuthor, &b.Genre, &pages,
		&isbn, &externalID, &stub, &complexity, &themesKnown, &style, &structure,
		&cvp, &energy, &pacing, &tone, &moodC,
		&b.Features.Confidence, &createdAt, &updatedAt,
	); err != nil {
		return domain.Book{}, err
	}
	b.PageCount = intPtr(pages)
	b.ISBN = isbn.String
	b.ExternalID = externalID.String
	b.Stub = stub == 1
	b.Features.Complexity = intPtr(complexity)
	b.Features.ThemesKnown = themesKnown == 1
	b.Features.Style = domain.WritingStyle(style)
	b.Features.Structure = domain.NarrativeStructure(structure)
	b.Features.CharacterVsPlot = floatPtr(cvp)
	if energy.Valid && pacing.Valid && tone.Valid && moodC.Valid {
		b.Features.Mood = &domain.Mood{
			Energy:     domain.Energy(energy.String),
			Pacing:     domain.Pacing(pacing.String),
			Tone:       domain.Tone(tone.String),
			Complexity: domain.MoodComplexity(moodC.String),
		}
	}
	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Book{}, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Book{}, err
	}
	return b, nil
}

// InsertBook stores a new catalog entry. The natural key (normalized title,
// normalized author) and the ISBN must be unique.
func (t *Tx) InsertBook(ctx context.Context, b domain.Book, now time.Time) (domain.Book, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	if b.Title == "" {
		return domain.Book{}, domain.NewValidationError("title", "required")
	}
	if b.PageCount != nil && *b.PageCount < 0 {
		return domain.Book{}, domain.NewValidationError("page_count", "must not be negative")
	}
	b.NormTitle = textutil.NormalizeTitle(b.Title)
	b.NormAuthor = textutil.NormalizeAuthor(b.Author)
	if existing, ok, err := t.FindBookByNaturalKey(ctx, b.Title, b.Author); err != nil {
		return domain.Book{}, err
	} else if ok {
		return domain.Book{}, domain.NewValidationError("title", fmt.Sprintf("book already exists as #%d", existing.ID))
	}

	stamp := formatTime(now)
	res, err := t.exec(ctx, builder.Insert("books").
		Columns("title", "author", "norm_title", "norm_author", "genre", "page_count", "isbn",
			"external_id", "stub", "created_at", "updated_at").
		Values(b.Title, b.Author, b.NormTitle, b.NormAuthor, strings.TrimSpace(b.Genre), nullInt(b.PageCount),
			nullString(strings.TrimSpace(b.ISBN)), nullString(strings.TrimSpace(b.ExternalID)), boolInt(b.Stub), stamp, stamp))
	if err != nil {
		return domain.Book{}, wrapConstraint(fmt.Errorf("insert book: %w", err), "isbn", "isbn already used by another book")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Book{}, fmt.Errorf("insert book id: %w", err)
	}
	if !b.Features.IsUnknown() {
		if err := t.UpsertBookFeatures(ctx, id, b.Features, now); err != nil {
			return domain.Book{}, err
		}
	}
	return t.GetBook(ctx, id)
}

// GetBook loads one book with its themes.
func (t *Tx) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	books, err := t.listBooks(ctx, builder.Select(bookColumns...).From("books b").Where(sq.Eq{"b.id": id}))
	if err != nil {
		return domain.Book{}, err
	}
	if len(books) == 0 {
		return domain.Book{}, domain.NotFoundf("book %d", id)
	}
	return books[0], nil
}

// FindBookByNaturalKey looks a book up by its normalized title and author.
func (t *Tx) FindBookByNaturalKey(ctx context.Context, title, author string) (domain.Book, bool, error) {
	books, err := t.listBooks(ctx, builder.Select(bookColumns...).From("books b").Where(sq.Eq{
		"b.norm_title":  textutil.NormalizeTitle(title),
		"b.norm_author": textutil.NormalizeAuthor(author),
	}))
	if err != nil || len(books) == 0 {
		return domain.Book{}, false, err
	}
	return books[0], true, nil
}

// BooksByID loads the given books keyed by id. Unknown ids are absent.
func (t *Tx) BooksByID(ctx context.Context, ids []int64) (map[int64]domain.Book, error) {
	out := make(map[int64]domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	books, err := t.listBooks(ctx, builder.Select(bookColumns...).From("books b").Where(sq.Eq{"b.id": uniqueIDs(ids)}))
	if err != nil {
		return nil, err
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

// BookFilter narrows ListBooks.
type BookFilter struct {
	MissingFeatures bool
	IncludeStubs    bool
	Limit           uint64
}

// ListBooks returns books in catalog-insertion order.
func (t *Tx) ListBooks(ctx context.Context, filter BookFilter) ([]domain.Book, error) {
	q := builder.Select(bookColumns...).From("books b").OrderBy("b.id")
	if !filter.IncludeStubs {
		q = q.Where(sq.Eq{"b.stub": 0})
	}
	if filter.MissingFeatures {
		q = q.Where(sq.Eq{"b.features_updated_at": nil})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return t.listBooks(ctx, q)
}

// CandidateQuery is a conjunction of feature predicates used by the
// preparation planner. Zero fields do not constrain.
type CandidateQuery struct {
	ComplexityAbove *float64
	ComplexityBelow *float64
	PagesAbove      *float64
	PagesBelow      *float64
	Style           domain.WritingStyle
	AnyTheme        []string
	RequireThemeOf  []string
	ExcludeIDs      []int64
}

// CandidateBooks returns non-stub books matching q in catalog-insertion order.
func (t *Tx) CandidateBooks(ctx context.Context, q CandidateQuery) ([]domain.Book, error) {
	sel := builder.Select(bookColumns...).From("books b").Where(sq.Eq{"b.stub": 0}).OrderBy("b.id")
	if q.ComplexityAbove != nil {
		sel = sel.Where(sq.Gt{"b.complexity": *q.ComplexityAbove})
	}
	if q.ComplexityBelow != nil {
		sel = sel.Where(sq.Lt{"b.complexity": *q.ComplexityBelow})
	}
	if q.PagesAbove != nil {
		sel = sel.Where(sq.Gt{"b.page_count": *q.PagesAbove})
	}
	if q.PagesBelow != nil {
		sel = sel.Where(sq.Lt{"b.page_count": *q.PagesBelow})
	}
	if q.Style.IsKnown() {
		sel = sel.Where(sq.Eq{"b.style": string(q.Style)})
	}
	if len(q.AnyTheme) > 0 {
		sel = sel.Where(themeExists(q.AnyTheme))
	}
	if len(q.RequireThemeOf) > 0 {
		sel = sel.Where(themeExists(q.RequireThemeOf))
	}
	if len(q.ExcludeIDs) > 0 {
		sel = sel.Where(sq.NotEq{"b.id": uniqueIDs(q.ExcludeIDs)})
	}
	return t.listBooks(ctx, sel)
}

func themeExists(themes []string) sq.Sqlizer {
	sub, args, _ := builder.Select("1").From("book_themes bt").
		Where("bt.book_id = b.id").
		Where(sq.Eq{"bt.theme": themes}).ToSql()
	return sq.Expr("EXISTS ("+sub+")", args...)
}

func (t *Tx) listBooks(ctx context.Context, q sq.SelectBuilder) ([]domain.Book, error) {
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	if err := t.attachThemes(ctx, books); err != nil {
		return nil, err
	}
	return books, nil
}

func (t *Tx) attachThemes(ctx context.Context, books []domain.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]int64, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	rows, err := t.query(ctx, builder.Select("book_id", "theme").From("book_themes").
		Where(sq.Eq{"book_id": ids}).OrderBy("book_id", "theme"))
	if err != nil {
		return fmt.Errorf("load themes: %w", err)
	}
	defer rows.Close()
	themes := make(map[int64][]string, len(books))
	for rows.Next() {
		var (
			id    int64
			theme string
		)
		if err := rows.Scan(&id, &theme); err != nil {
			return fmt.Errorf("scan theme: %w", err)
		}
		themes[id] = append(themes[id], theme)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate themes: %w", err)
	}
	for i := range books {
		if books[i].Features.ThemesKnown {
			books[i].Features.Themes = themes[books[i].ID]
			if books[i].Features.Themes == nil {
				books[i].Features.Themes = []string{}
			}
		}
	}
	return nil
}

// UpsertBookFeatures replaces the derived features of a book as a whole and
// invalidates profile snapshots that folded in events of that book.
func (t *Tx) UpsertBookFeatures(ctx context.Context, bookID int64, f domain.Features, now time.Time) error {
	f = f.Normalized()
	if err := f.Validate(); err != nil {
		return err
	}
	update := builder.Update("books").
		Set("complexity", nullInt(f.Complexity)).
		Set("themes_known", boolInt(f.ThemesKnown)).
		Set("style", string(f.Style)).
		Set("structure", string(f.Structure)).
		Set("character_vs_plot", nullFloat(f.CharacterVsPlot)).
		Set("feature_confidence", f.Confidence).
		Set("features_updated_at", formatTime(now)).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": bookID})
	if f.Mood != nil {
		update = update.
			Set("mood_energy", string(f.Mood.Energy)).
			Set("mood_pacing", string(f.Mood.Pacing)).
			Set("mood_tone", string(f.Mood.Tone)).
			Set("mood_complexity", string(f.Mood.Complexity))
	} else {
		update = update.
			Set("mood_energy", nil).
			Set("mood_pacing", nil).
			Set("mood_tone", nil).
			Set("mood_complexity", nil)
	}
	res, err := t.exec(ctx, update)
	if err != nil {
		return wrapConstraint(fmt.Errorf("update features: %w", err), "features", "value out of range")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("book %d", bookID)
	}

	if _, err := t.exec(ctx, builder.Delete("book_themes").Where(sq.Eq{"book_id": bookID})); err != nil {
		return fmt.Errorf("clear themes: %w", err)
	}
	if f.ThemesKnown && len(f.Themes) > 0 {
		insert := builder.Insert("book_themes").Columns("book_id", "theme")
		for _, theme := range f.Themes {
			insert = insert.Values(bookID, theme)
		}
		if _, err := t.exec(ctx, insert); err != nil {
			return fmt.Errorf("insert themes: %w", err)
		}
	}
	return t.invalidateSnapshotsForBook(ctx, bookID)
}

// SetPageCount updates the descriptive page count.
func (t *Tx) SetPageCount(ctx context.Context, bookID int64, pages int, now time.Time) error {
	if pages <= 0 {
		return domain.NewValidationError("page_count", "must be positive")
	}
	res, err := t.exec(ctx, builder.Update("books").
		Set("page_count", pages).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": bookID}))
	if err != nil {
		return fmt.Errorf("update page count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("book %d", bookID)
	}
	return t.invalidateSnapshotsForBook(ctx, bookID)
}

func (t *Tx) requireBook(ctx context.Context, id int64) error {
	row, err := t.queryRow(ctx, builder.Select("1").From("books").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundf("book %d", id)
		}
		return fmt.Errorf("check book: %w", err)
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
