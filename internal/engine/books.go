package engine

import (
	"context"

	"shelfmind/internal/catalog"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/narrator"
	"shelfmind/internal/profile"
	"shelfmind/internal/scoring"
	"shelfmind/internal/store"
)

// AddBook stores a new catalog entry. Unset features stay unknown.
func (e *Engine) AddBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	var out domain.Book
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.InsertBook(ctx, book, e.clock.Now())
		return err
	})
	if err != nil {
		return domain.Book{}, err
	}
	e.logger.Info("book added",
		logging.Int64(logging.FieldBookID, out.ID),
		logging.String("title", out.Title),
		logging.Bool("stub", out.Stub),
	)
	return out, nil
}

// GetBook loads one book.
func (e *Engine) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	var out domain.Book
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GetBook(ctx, id)
		return err
	})
	return out, err
}

// ListBooks returns the catalog.
func (e *Engine) ListBooks(ctx context.Context, filter store.BookFilter) ([]domain.Book, error) {
	var out []domain.Book
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListBooks(ctx, filter)
		return err
	})
	return out, err
}

// Evaluation is a score together with the inputs it was computed from.
type Evaluation struct {
	Book    domain.Book
	Profile domain.Profile
	Result  domain.ScoreResult
}

// Evaluate scores a book against the current profile. It writes nothing.
func (e *Engine) Evaluate(ctx context.Context, bookID int64) (domain.ScoreResult, error) {
	ev, err := e.evaluate(ctx, bookID)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	return ev.Result, nil
}

func (e *Engine) evaluate(ctx context.Context, bookID int64) (Evaluation, error) {
	var ev Evaluation
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		res, err := e.profiles.Load(ctx, tx)
		if err != nil {
			return err
		}
		ev = Evaluation{Book: book, Profile: res.Profile}
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}
	e.warnStale(ev.Book)
	ev.Result = scoring.Score(ev.Book, ev.Profile, e.scorer)
	return ev, nil
}

func (e *Engine) warnStale(book domain.Book) {
	if !book.Features.IsUnknown() {
		return
	}
	logging.WarnWithContext(e.logger, "book has no features; scoring with neutral values", string(domain.KindStaleFeature),
		logging.Int64(logging.FieldBookID, book.ID),
		logging.String(logging.FieldErrorHint, "run enrich to fetch catalog features"),
		logging.String(logging.FieldImpact, "missing factors scored as neutral"),
	)
}

// Explanation is an evaluation with narrator prose. Text is empty when the
// narrator is disabled or unavailable.
type Explanation struct {
	Evaluation
	Text string
}

// Explain evaluates a book and asks the narrator to describe the result.
func (e *Engine) Explain(ctx context.Context, bookID int64) (Explanation, error) {
	ev, err := e.evaluate(ctx, bookID)
	if err != nil {
		return Explanation{}, err
	}
	text := narrator.Explain(ctx, e.narrator, narrator.Input{
		Profile: ev.Profile,
		Book:    ev.Book,
		Result:  ev.Result,
	}, e.cfg.NarratorTimeout(), e.logger)
	return Explanation{Evaluation: ev, Text: text}, nil
}

// Enrich fetches catalog features for one book.
func (e *Engine) Enrich(ctx context.Context, bookID int64) (catalog.Outcome, error) {
	if !e.enricher.Enabled() {
		return catalog.Outcome{}, domain.NewValidationError("catalog.provider", "no catalog provider configured")
	}
	return e.enricher.Enrich(ctx, bookID)
}

// EnrichAll fetches features for every book that has none, or for every
// book when refresh is set.
func (e *Engine) EnrichAll(ctx context.Context, refresh bool) ([]catalog.Outcome, error) {
	if !e.enricher.Enabled() {
		return nil, domain.NewValidationError("catalog.provider", "no catalog provider configured")
	}
	return e.enricher.EnrichAll(ctx, refresh)
}

// ShowProfile derives the current profile without writing a snapshot.
func (e *Engine) ShowProfile(ctx context.Context) (domain.Profile, error) {
	var res profile.Result
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		res, err = e.profiles.Load(ctx, tx)
		return err
	})
	return res.Profile, err
}

// BackfillProfile replays the entire history from an empty profile and
// rewrites the latest snapshot.
func (e *Engine) BackfillProfile(ctx context.Context) (domain.Profile, error) {
	return e.recomputer.Backfill(ctx)
}

// SetFeatures replaces a book's features by hand. The features are
// normalized and validated like enrichment results.
func (e *Engine) SetFeatures(ctx context.Context, bookID int64, f domain.Features) (domain.Book, error) {
	if f.Confidence == 0 {
		f.Confidence = 1
	}
	var out domain.Book
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertBookFeatures(ctx, bookID, f, e.clock.Now()); err != nil {
			return err
		}
		var err error
		out, err = tx.GetBook(ctx, bookID)
		return err
	})
	return out, err
}
