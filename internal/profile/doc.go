// Package profile derives the reader profile from the completion history.
//
// A State is an append-only ledger of folded history entries plus the
// running length-tolerance smoothing. Fold appends one entry; Derive turns a
// State into a domain.Profile. Build is Fold over an empty State, so a
// profile built from scratch and one folded forward from a snapshot agree
// exactly. Builder persists States as profile snapshots in the store.
package profile
