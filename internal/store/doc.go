// Package store persists the readiness engine's state in SQLite.
//
// One database file holds the catalog, the reading history, profile
// snapshots, deferred targets with their checkpoints, preparation plans,
// vocabulary, mastery entities with their append-only audit log, the
// notification outbox, the catalog cache and the effective configuration.
// Schema evolution is driven by goose over embedded, append-only
// migrations.
//
// Every operation runs inside a transaction obtained from Store.Write or
// Store.Read. Writes serialize on a store-level mutex and commit or roll back
// as a whole; reads see a consistent snapshot. Missing rows surface as
// domain.ErrNotFound and constraint violations as domain.ErrInvalidArgument.
package store
