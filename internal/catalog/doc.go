// Package catalog enriches books with derived features from an external
// catalog.
//
// A Provider answers a single lookup by ISBN or by title and author and may
// report that it does not know the book. The Enricher wraps a provider with a
// per-call timeout and the store's catalog_cache table, then replaces the
// book's features as a whole. Provider failures are recovered locally: the
// failure is logged and the book keeps unknown features.
//
// Two providers ship with shelfmind: an HTTP JSON client for a remote catalog
// and a TOML file for hand-curated metadata.
package catalog
