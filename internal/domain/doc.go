// Package domain defines the reader readiness data model and the error
// taxonomy shared by every engine component.
//
// Types here are plain values: books and their enrichment features, the
// completion history, derived profiles, deferred targets with their
// checkpoints, preparation plans, vocabulary items, mastery entities and the
// decay audit trail. Book features are a tagged variant: every feature field
// has an explicit unknown state, and scoring code matches on that state
// instead of probing loosely typed maps.
//
// Nothing in this package performs I/O.
package domain
