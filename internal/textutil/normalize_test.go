package textutil

import "testing"

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Left Hand of Darkness", "left hand of darkness"},
		{"  left-hand   of DARKNESS!", "left hand of darkness"},
		{"Cien años de soledad", "cien anos de soledad"},
		{"The", "the"},
		{"A Wizard of Earthsea", "wizard of earthsea"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeTitle(tt.in); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeAuthorReordersCommaForm(t *testing.T) {
	a := NormalizeAuthor("Le Guin, Ursula K.")
	b := NormalizeAuthor("Ursula K. Le Guin")
	if a != b || a != "ursula k le guin" {
		t.Fatalf("NormalizeAuthor mismatch: %q vs %q", a, b)
	}
	if got := NormalizeAuthor("Gabriel García Márquez"); got != "gabriel garcia marquez" {
		t.Fatalf("diacritics not stripped: %q", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity(nil, NewFingerprint("hello")); got != 0 {
		t.Fatalf("nil fingerprint similarity = %v", got)
	}
	if NewFingerprint("  ...  ") != nil {
		t.Fatal("expected nil fingerprint for punctuation only")
	}
	a := NewFingerprint("infinite jest")
	if got := CosineSimilarity(a, NewFingerprint("Infinite Jest")); got < 0.999 {
		t.Fatalf("identical titles similarity = %v", got)
	}
	if got := CosineSimilarity(a, NewFingerprint("pale king")); got != 0 {
		t.Fatalf("disjoint titles similarity = %v", got)
	}
}

func TestMatchScorePrefersAuthorMatch(t *testing.T) {
	right := MatchScore("Dune", "Frank Herbert", "Dune", "Herbert, Frank")
	wrong := MatchScore("Dune", "Frank Herbert", "Dune", "Brian Herbert")
	if right <= wrong {
		t.Fatalf("expected author match to score higher: %v <= %v", right, wrong)
	}
}
