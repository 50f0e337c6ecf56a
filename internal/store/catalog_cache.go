package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CatalogCacheEntry is a cached CatalogProvider answer. Payload is opaque to
// the store.
type CatalogCacheEntry struct {
	Key        string
	Payload    []byte
	Confidence float64
	FetchedAt  time.Time
}

// GetCatalogCache looks up a cached provider answer.
func (t *Tx) GetCatalogCache(ctx context.Context, key string) (CatalogCacheEntry, bool, error) {
	row, err := t.queryRow(ctx, builder.Select("cache_key", "payload", "confidence", "fetched_at").
		From("catalog_cache").Where(sq.Eq{"cache_key": key}))
	if err != nil {
		return CatalogCacheEntry{}, false, err
	}
	var (
		entry            CatalogCacheEntry
		payload, fetched string
	)
	if err := row.Scan(&entry.Key, &payload, &entry.Confidence, &fetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CatalogCacheEntry{}, false, nil
		}
		return CatalogCacheEntry{}, false, fmt.Errorf("read catalog cache: %w", err)
	}
	if entry.FetchedAt, err = parseTime(fetched); err != nil {
		return CatalogCacheEntry{}, false, err
	}
	entry.Payload = []byte(payload)
	return entry, true, nil
}

// PutCatalogCache stores or replaces a cached provider answer.
func (t *Tx) PutCatalogCache(ctx context.Context, entry CatalogCacheEntry) error {
	_, err := t.exec(ctx, builder.Insert("catalog_cache").
		Columns("cache_key", "payload", "confidence", "fetched_at").
		Values(entry.Key, string(entry.Payload), entry.Confidence, formatTime(entry.FetchedAt)).
		Suffix("ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, confidence = excluded.confidence, fetched_at = excluded.fetched_at"))
	if err != nil {
		return fmt.Errorf("write catalog cache: %w", err)
	}
	return nil
}
