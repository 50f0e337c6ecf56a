package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)
	c.Advance(36 * time.Hour)
	if got := c.Now(); !got.Equal(start.Add(36 * time.Hour)) {
		t.Fatalf("Now() = %v", got)
	}
}

func TestSameUTCDay(t *testing.T) {
	a := time.Date(2025, 3, 1, 0, 0, 1, 0, time.UTC)
	b := time.Date(2025, 3, 1, 23, 59, 59, 0, time.UTC)
	if !SameUTCDay(a, b) {
		t.Fatal("expected same day")
	}
	if SameUTCDay(a, b.Add(2*time.Second)) {
		t.Fatal("expected different day")
	}
}

func TestNextAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	if got := NextAt(now, 2, time.UTC); !got.Equal(now.AddDate(0, 0, 1)) {
		t.Fatalf("NextAt on the hour = %v", got)
	}
	if got := NextAt(now, 3, time.UTC); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("NextAt later today = %v", got)
	}
}

func TestDay(t *testing.T) {
	ts := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	if got := Day(ts, nil); !got.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Day() = %v", got)
	}
}
