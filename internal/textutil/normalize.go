package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var leadingArticles = []string{"the ", "a ", "an "}

// Fold strips diacritics, folds case and collapses every run of
// non-alphanumeric characters into one space.
func Fold(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, value)
	if err != nil {
		stripped = value
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// NormalizeTitle returns the natural-key form of a title.
func NormalizeTitle(title string) string {
	key := Fold(title)
	for _, article := range leadingArticles {
		if rest, ok := strings.CutPrefix(key, article); ok && rest != "" {
			return rest
		}
	}
	return key
}

// NormalizeAuthor returns the natural-key form of an author name. "Le Guin,
// Ursula K." and "Ursula K. Le Guin" normalize to the same key.
func NormalizeAuthor(author string) string {
	author = strings.TrimSpace(author)
	if last, first, ok := strings.Cut(author, ","); ok && strings.TrimSpace(first) != "" {
		author = strings.TrimSpace(first) + " " + strings.TrimSpace(last)
	}
	return Fold(author)
}
