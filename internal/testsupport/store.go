package testsupport

import (
	"context"
	"testing"
	"time"

	"shelfmind/internal/clock"
	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/store"
)

// Epoch is the default start instant of fake clocks in tests.
var Epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

// NewFakeClock returns a fake clock starting at Epoch.
func NewFakeClock() *clock.Fake {
	return clock.NewFake(Epoch)
}

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustWrite runs fn in a write transaction and fails the test on error.
func MustWrite(t testing.TB, st *store.Store, fn func(*store.Tx) error) {
	t.Helper()

	if err := st.Write(context.Background(), fn); err != nil {
		t.Fatalf("store write: %v", err)
	}
}

// MustAddBook inserts book and returns it with its id.
func MustAddBook(t testing.TB, st *store.Store, book domain.Book) domain.Book {
	t.Helper()

	var out domain.Book
	MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		out, err = tx.InsertBook(context.Background(), book, Epoch)
		return err
	})
	return out
}

// MustLogCompletion appends a completion event.
func MustLogCompletion(t testing.TB, st *store.Store, event domain.CompletionEvent) domain.CompletionEvent {
	t.Helper()

	var out domain.CompletionEvent
	MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		out, err = tx.AppendCompletion(context.Background(), event, event.At)
		return err
	})
	return out
}
