package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"shelfmind/internal/clock"
	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/store"
)

// Options bounds provider calls.
type Options struct {
	Timeout     time.Duration
	Concurrency int
}

// OptionsFromConfig extracts the enrichment bounds from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:     cfg.CatalogTimeout(),
		Concurrency: cfg.Catalog.Concurrency,
	}
}

// Outcome describes the enrichment of one book.
type Outcome struct {
	BookID     int64
	Title      string
	Known      bool
	Cached     bool
	Confidence float64
	// Err is set when the provider was unavailable. The book keeps its
	// previous features.
	Err error
}

// Enricher applies provider answers to stored books.
type Enricher struct {
	store    *store.Store
	provider Provider
	clock    clock.Clock
	opts     Options
	logger   *slog.Logger
}

// NewEnricher wires an enricher. A nil provider disables lookups; every
// outcome then reports an unknown book.
func NewEnricher(st *store.Store, provider Provider, clk clock.Clock, opts Options, logger *slog.Logger) *Enricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Enricher{
		store:    st,
		provider: provider,
		clock:    clk,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "catalog"),
	}
}

// Enabled reports whether a provider is configured.
func (e *Enricher) Enabled() bool { return e.provider != nil }

// Enrich looks up one book and replaces its features with the answer. Only
// a missing book is an error; provider failures are reported in the outcome.
func (e *Enricher) Enrich(ctx context.Context, bookID int64) (Outcome, error) {
	var book domain.Book
	if err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		book, err = tx.GetBook(ctx, bookID)
		return err
	}); err != nil {
		return Outcome{}, err
	}
	return e.enrichBook(ctx, book)
}

func (e *Enricher) enrichBook(ctx context.Context, book domain.Book) (Outcome, error) {
	out := Outcome{BookID: book.ID, Title: book.Title}
	if e.provider == nil {
		return out, nil
	}
	q := QueryFor(book)
	key := q.CacheKey()

	var (
		entry store.CatalogCacheEntry
		hit   bool
	)
	if err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		entry, hit, err = tx.GetCatalogCache(ctx, key)
		return err
	}); err != nil {
		return out, err
	}

	var res Result
	if hit {
		record, err := decodeRecord(entry.Payload)
		if err == nil {
			res = Result{Record: record, Known: true}
			out.Cached = true
		} else {
			logging.WarnWithContext(e.logger, "catalog cache entry unreadable; querying provider", "catalog_cache_corrupt",
				logging.Int64(logging.FieldBookID, book.ID),
				logging.String("cache_key", key),
				logging.Error(err),
			)
			hit = false
		}
	}
	if !hit {
		var err error
		res, err = e.lookup(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Err = fmt.Errorf("%w: %s: %v", domain.ErrExternalUnavailable, e.provider.Name(), err)
			logging.WarnWithContext(e.logger, "catalog provider unavailable; features stay unknown", string(domain.KindExternalUnavailable),
				logging.Int64(logging.FieldBookID, book.ID),
				logging.String("provider", e.provider.Name()),
				logging.String(logging.FieldErrorHint, "check catalog.base_url or catalog.file_path"),
				logging.String(logging.FieldImpact, "book scored with neutral features"),
				logging.Error(err),
			)
			return out, nil
		}
	}
	if !res.Known {
		e.logger.Debug("catalog has no record", logging.Int64(logging.FieldBookID, book.ID), logging.String("cache_key", key))
		return out, nil
	}

	features := res.Record.Features()
	if err := features.Validate(); err != nil {
		out.Err = fmt.Errorf("%w: %s returned invalid features: %v", domain.ErrExternalUnavailable, e.provider.Name(), err)
		logging.WarnWithContext(e.logger, "catalog record rejected", string(domain.KindExternalUnavailable),
			logging.Int64(logging.FieldBookID, book.ID),
			logging.Error(err),
		)
		return out, nil
	}

	now := e.clock.Now()
	err := e.store.Write(ctx, func(tx *store.Tx) error {
		if !hit {
			payload, err := encodeRecord(res.Record)
			if err != nil {
				return err
			}
			if err := tx.PutCatalogCache(ctx, store.CatalogCacheEntry{
				Key:        key,
				Payload:    payload,
				Confidence: res.Record.Confidence,
				FetchedAt:  now,
			}); err != nil {
				return err
			}
		}
		if err := tx.UpsertBookFeatures(ctx, book.ID, features, now); err != nil {
			return err
		}
		if _, known := book.Pages(); !known && res.Record.PageCount > 0 {
			return tx.SetPageCount(ctx, book.ID, res.Record.PageCount, now)
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	out.Known = true
	out.Confidence = features.Confidence
	e.logger.Info("book enriched",
		logging.Int64(logging.FieldBookID, book.ID),
		logging.Bool("cached", out.Cached),
		logging.Float64("confidence", out.Confidence),
	)
	return out, nil
}

func (e *Enricher) lookup(ctx context.Context, q Query) (Result, error) {
	callCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	res, err := e.provider.Lookup(callCtx, q)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("lookup timed out after %s", e.opts.Timeout)
	}
	return res, err
}

// EnrichAll enriches every book that has no features yet, or every book
// when refresh is set. At most Options.Concurrency lookups run at once.
// Outcomes are returned in catalog order.
func (e *Enricher) EnrichAll(ctx context.Context, refresh bool) ([]Outcome, error) {
	var books []domain.Book
	if err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		books, err = tx.ListBooks(ctx, store.BookFilter{MissingFeatures: !refresh, IncludeStubs: true})
		return err
	}); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(books))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, book := range books {
		g.Go(func() error {
			out, err := e.enrichBook(gctx, book)
			if err != nil {
				return fmt.Errorf("enrich book %d: %w", book.ID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
