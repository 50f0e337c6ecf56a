// Package textutil normalizes book titles and authors into natural keys and
// compares free-text titles for catalog matching.
//
// Normalization decomposes Unicode (NFKD), strips combining marks, folds case,
// collapses punctuation to single spaces and drops a leading English article
// from titles, so "The Left Hand of Darkness" and "left hand of darkness"
// share one key.
package textutil
