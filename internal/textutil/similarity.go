package textutil

import (
	"math"
	"strings"
)

// Fingerprint is a term-frequency vector over folded tokens.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint builds a fingerprint, returning nil when text has no tokens.
func NewFingerprint(text string) *Fingerprint {
	fields := strings.Fields(Fold(text))
	if len(fields) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(fields))
	for _, token := range fields {
		counts[token]++
	}
	var sum float64
	for _, c := range counts {
		sum += c * c
	}
	return &Fingerprint{tokens: counts, norm: math.Sqrt(sum)}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		dot += count * b.tokens[token]
	}
	return dot / (a.norm * b.norm)
}

// MatchScore rates how well a catalog hit (title, author) matches the
// requested book. Title similarity dominates; an author match adds weight.
func MatchScore(wantTitle, wantAuthor, gotTitle, gotAuthor string) float64 {
	title := CosineSimilarity(NewFingerprint(NormalizeTitle(wantTitle)), NewFingerprint(NormalizeTitle(gotTitle)))
	if wantAuthor == "" || gotAuthor == "" {
		return title
	}
	author := CosineSimilarity(NewFingerprint(NormalizeAuthor(wantAuthor)), NewFingerprint(NormalizeAuthor(gotAuthor)))
	return 0.7*title + 0.3*author
}
