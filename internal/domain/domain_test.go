package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindMapsWrappedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("load book 3: %w", ErrNotFound), KindNotFound},
		{NewValidationError("rating", "must be in 1..5"), KindInvalidArgument},
		{&CorruptError{Entity: "target", ID: "1"}, KindCorrupt},
		{fmt.Errorf("review: %w", ErrConflict), KindConflictingWrite},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestFeaturesNormalizedSortsAndDedupesThemes(t *testing.T) {
	f := Features{Themes: []string{" Identity", "coming of age", "identity", ""}, ThemesKnown: true}
	got := f.Normalized().Themes
	want := []string{"coming_of_age", "identity"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("themes = %v, want %v", got, want)
	}
	if !(Features{}).IsUnknown() {
		t.Fatal("zero features should be unknown")
	}
}

func TestFeaturesValidateRanges(t *testing.T) {
	bad := Features{Complexity: IntPtr(11), CharacterVsPlot: FloatPtr(1.5), Style: "baroque"}
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) != 3 {
		t.Fatalf("expected three field errors, got %v", err)
	}
	good := Features{Complexity: IntPtr(6), CharacterVsPlot: FloatPtr(-0.4), Style: StyleLyrical}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompletionEventValidate(t *testing.T) {
	ev := CompletionEvent{BookID: 1, At: time.Now(), Status: CompletionCompleted, Rating: IntPtr(6)}
	if !errors.Is(ev.Validate(), ErrInvalidArgument) {
		t.Fatal("rating 6 should be rejected")
	}
	ev.Rating = IntPtr(5)
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCheckpointOrder(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ok := []Checkpoint{{At: base}, {At: base.Add(time.Second)}}
	if err := ValidateCheckpointOrder(1, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []Checkpoint{{At: base}, {At: base}}
	err := ValidateCheckpointOrder(1, bad)
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) || corrupt.RepairHint == "" {
		t.Fatalf("expected corrupt error with hint, got %v", err)
	}
}

func TestDecaySelectorCanonical(t *testing.T) {
	sel, err := ParseDecaySelector("ids: topic:graphs, skill:go")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := sel.Canonical(); got != "ids:skill:go,topic:graphs" {
		t.Fatalf("canonical = %q", got)
	}
	sel, err = ParseDecaySelector("category:Algorithms")
	if err != nil || sel.Canonical() != "category:algorithms" {
		t.Fatalf("category selector = %q, %v", sel.Canonical(), err)
	}
	if _, err := ParseDecaySelector("ids:planet:mars"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestTargetStatusTerminal(t *testing.T) {
	for _, s := range []TargetStatus{TargetWaiting, TargetPreparing, TargetReady} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if !TargetPromoted.IsTerminal() || !TargetAbandoned.IsTerminal() {
		t.Fatal("promoted and abandoned are terminal")
	}
}
