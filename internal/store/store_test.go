package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shelfmind/internal/domain"
	"shelfmind/internal/store"
	"shelfmind/internal/testsupport"
)

var t0 = testsupport.Epoch

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	book := testsupport.MustAddBook(t, st, testsupport.NewBook("The Left Hand of Darkness",
		testsupport.Author("Le Guin, Ursula K."),
		testsupport.Complexity(7),
		testsupport.Themes("Identity", "gender", "identity"),
		testsupport.Pages(304),
	))
	if book.ID == 0 {
		t.Fatal("expected book id to be assigned")
	}

	ctx := context.Background()
	err := st.Read(ctx, func(tx *store.Tx) error {
		fetched, err := tx.GetBook(ctx, book.ID)
		if err != nil {
			return err
		}
		if got := fetched.Features.Themes; len(got) != 2 || got[0] != "gender" || got[1] != "identity" {
			t.Fatalf("unexpected themes %v", got)
		}
		if c, ok := fetched.Features.ComplexityValue(); !ok || c != 7 {
			t.Fatalf("unexpected complexity %v %v", c, ok)
		}
		found, ok, err := tx.FindBookByNaturalKey(ctx, "Left Hand of Darkness", "Ursula K. Le Guin")
		if err != nil {
			return err
		}
		if !ok || found.ID != book.ID {
			t.Fatalf("natural key lookup failed: %#v", found)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestInsertBookRejectsDuplicateNaturalKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustAddBook(t, st, testsupport.NewBook("The Hobbit", testsupport.Author("J.R.R. Tolkien")))

	ctx := context.Background()
	err := st.Write(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertBook(ctx, testsupport.NewBook("Hobbit", testsupport.Author("Tolkien, J. R. R.")), t0)
		return err
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestFailedWriteLeavesStoreUnchanged(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	boom := errors.New("boom")
	err := st.Write(ctx, func(tx *store.Tx) error {
		if _, err := tx.InsertBook(ctx, testsupport.NewBook("Dune"), t0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = st.Read(ctx, func(tx *store.Tx) error {
		books, err := tx.ListBooks(ctx, store.BookFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(books) != 0 {
			t.Fatalf("expected rollback, found %d books", len(books))
		}
		return nil
	})
}

func TestAppendCompletionOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	book := testsupport.MustAddBook(t, st, testsupport.NewBook("Piranesi", testsupport.Pages(272)))

	testsupport.MustLogCompletion(t, st, testsupport.Completed(book.ID, 5, t0.Add(48*time.Hour)))

	ctx := context.Background()
	err := st.Write(ctx, func(tx *store.Tx) error {
		_, err := tx.AppendCompletion(ctx, testsupport.Completed(book.ID, 4, t0), t0)
		return err
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected out-of-order completion to be rejected, got %v", err)
	}

	err = st.Write(ctx, func(tx *store.Tx) error {
		_, err := tx.AppendCompletion(ctx, testsupport.Completed(book.ID+100, 4, t0.Add(72*time.Hour)), t0)
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown book to be not found, got %v", err)
	}

	err = st.Write(ctx, func(tx *store.Tx) error {
		_, err := tx.AppendCompletion(ctx, testsupport.Completed(book.ID, 9, t0.Add(72*time.Hour)), t0)
		return err
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected rating 9 to be rejected, got %v", err)
	}
}

func TestReadHistoryEntriesJoinsFeatures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	a := testsupport.MustAddBook(t, st, testsupport.NewBook("A", testsupport.Complexity(4), testsupport.Pages(200)))
	b := testsupport.MustAddBook(t, st, testsupport.NewBook("B"))

	testsupport.MustLogCompletion(t, st, testsupport.Completed(a.ID, 4, t0))
	testsupport.MustLogCompletion(t, st, testsupport.DNF(b.ID, 50, t0.Add(time.Hour)))

	ctx := context.Background()
	_ = st.Read(ctx, func(tx *store.Tx) error {
		entries, err := tx.ReadHistoryEntries(ctx, store.HistoryFilter{})
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Pages == nil || *entries[0].Pages != 200 {
			t.Fatalf("expected pages joined, got %v", entries[0].Pages)
		}
		if !entries[1].Features.IsUnknown() {
			t.Fatalf("expected unknown features for B")
		}
		if entries[1].Event.Rating != nil {
			t.Fatalf("dnf must not carry a rating")
		}
		upto := t0
		prefix, err := tx.ReadHistory(ctx, store.HistoryFilter{Upto: &upto})
		if err != nil {
			t.Fatalf("prefix: %v", err)
		}
		if len(prefix) != 1 {
			t.Fatalf("expected prefix of 1, got %d", len(prefix))
		}
		return nil
	})
}

func TestSnapshotInvalidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	book := testsupport.MustAddBook(t, st, testsupport.NewBook("Snap", testsupport.Complexity(5)))
	first := testsupport.MustLogCompletion(t, st, testsupport.Completed(book.ID, 4, t0))

	ctx := context.Background()
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		_, err := tx.WriteProfileSnapshot(ctx, store.ProfileSnapshot{
			AsOf: t0, EventCount: 1, LastEventID: first.ID, Payload: []byte(`{"entries":[]}`),
		}, t0)
		return err
	})

	testsupport.MustLogCompletion(t, st, testsupport.Completed(book.ID, 5, t0.Add(time.Hour)))
	_ = st.Read(ctx, func(tx *store.Tx) error {
		snap, ok, err := tx.ReadProfileSnapshot(ctx)
		if err != nil || !ok {
			t.Fatalf("expected snapshot, ok=%v err=%v", ok, err)
		}
		if snap.Current {
			t.Fatal("snapshot must stop being current after a newer completion")
		}
		return nil
	})

	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		return tx.UpsertBookFeatures(ctx, book.ID, domain.Features{Complexity: domain.IntPtr(8)}, t0)
	})
	_ = st.Read(ctx, func(tx *store.Tx) error {
		if _, ok, err := tx.ReadProfileSnapshot(ctx); err != nil || ok {
			t.Fatalf("expected snapshot invalidated by feature change, ok=%v err=%v", ok, err)
		}
		return nil
	})
}

func TestCheckpointsStrictlyIncreaseAndCacheScore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	book := testsupport.MustAddBook(t, st, testsupport.NewBook("Target"))

	ctx := context.Background()
	var target domain.DeferredTarget
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		target, err = tx.DeferTarget(ctx, domain.DeferredTarget{
			BookID: book.ID, AddedAt: t0, ReminderMode: domain.ReminderOnReady, Status: domain.TargetWaiting,
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendCheckpoint(ctx, domain.Checkpoint{TargetID: target.ID, At: t0, Score: 42, Trigger: "defer"})
		return err
	})

	err := st.Write(ctx, func(tx *store.Tx) error {
		_, err := tx.AppendCheckpoint(ctx, domain.Checkpoint{TargetID: target.ID, At: t0, Score: 50, Trigger: "manual"})
		return err
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected duplicate timestamp rejection, got %v", err)
	}

	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		_, err := tx.AppendCheckpoint(ctx, domain.Checkpoint{
			TargetID: target.ID, At: t0.Add(time.Nanosecond), Score: 61, Delta: 19,
			Gaps: []domain.GapTag{domain.GapComplexity}, BooksHelped: []int64{book.ID}, Trigger: "completion",
		})
		return err
	})

	_ = st.Read(ctx, func(tx *store.Tx) error {
		checkpoints, err := tx.ReadCheckpoints(ctx, target.ID)
		if err != nil {
			t.Fatalf("read checkpoints: %v", err)
		}
		if len(checkpoints) != 2 {
			t.Fatalf("expected 2 checkpoints, got %d", len(checkpoints))
		}
		got, err := tx.GetTarget(ctx, target.ID)
		if err != nil {
			t.Fatalf("get target: %v", err)
		}
		if got.CachedScore != checkpoints[1].Score {
			t.Fatalf("cached score %d != latest checkpoint %d", got.CachedScore, checkpoints[1].Score)
		}
		if len(checkpoints[1].Gaps) != 1 || checkpoints[1].BooksHelped[0] != book.ID {
			t.Fatalf("unexpected checkpoint payload %#v", checkpoints[1])
		}
		return nil
	})

	testsupport.MustWrite(t, st, func(tx *store.Tx) error { return tx.DeleteTarget(ctx, target.ID) })
	_ = st.Read(ctx, func(tx *store.Tx) error {
		if _, err := tx.ReadCheckpoints(ctx, target.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected target gone, got %v", err)
		}
		return nil
	})
}

func TestTerminalTargetIsImmutable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	book := testsupport.MustAddBook(t, st, testsupport.NewBook("Done"))

	ctx := context.Background()
	var target domain.DeferredTarget
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		target, err = tx.DeferTarget(ctx, domain.DeferredTarget{
			BookID: book.ID, AddedAt: t0, ReminderMode: domain.ReminderManual, Status: domain.TargetWaiting,
		})
		if err != nil {
			return err
		}
		return tx.UpdateTargetStatus(ctx, target.ID, domain.TargetPromoted, nil, t0)
	})

	err := st.Write(ctx, func(tx *store.Tx) error {
		return tx.UpdateTargetStatus(ctx, target.ID, domain.TargetReady, nil, t0)
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected terminal target to reject changes, got %v", err)
	}

	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		_, err := tx.DeferTarget(ctx, domain.DeferredTarget{
			BookID: book.ID, AddedAt: t0.Add(time.Hour), ReminderMode: domain.ReminderManual, Status: domain.TargetWaiting,
		})
		return err
	})
}

func TestScheduleReviewDetectsConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var item domain.VocabularyItem
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		item, err = tx.InsertVocabulary(ctx, domain.VocabularyItem{
			Word: "liminal", State: domain.SM2State{EaseScaled: 2500}, NextDue: t0, CreatedAt: t0,
		})
		return err
	})

	update := store.ReviewUpdate{
		ItemID: item.ID, ExpectedVersion: item.Version, Quality: 4, Success: true,
		State: domain.SM2State{Repetitions: 1, IntervalDays: 1, EaseScaled: 2500}, NextDue: t0.AddDate(0, 0, 1), ReviewedAt: t0,
	}
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		_, err := tx.ScheduleReview(ctx, update)
		return err
	})

	attempts := 0
	err := st.Write(ctx, func(tx *store.Tx) error {
		attempts++
		_, err := tx.ScheduleReview(ctx, update)
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry, got %d attempts", attempts)
	}
}

func TestPopDueReviewsOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		for _, seed := range []struct {
			word string
			due  time.Time
			reps int
		}{
			{"zeugma", t0, 3},
			{"anaphora", t0, 1},
			{"chiasmus", t0.AddDate(0, 0, -1), 5},
			{"later", t0.AddDate(0, 0, 2), 0},
		} {
			if _, err := tx.InsertVocabulary(ctx, domain.VocabularyItem{
				Word: seed.word, NextDue: seed.due, CreatedAt: t0,
				State: domain.SM2State{Repetitions: seed.reps, IntervalDays: 1, EaseScaled: 2500},
			}); err != nil {
				return err
			}
		}
		return nil
	})

	_ = st.Read(ctx, func(tx *store.Tx) error {
		items, err := tx.PopDueReviews(ctx, t0, 10)
		if err != nil {
			t.Fatalf("due: %v", err)
		}
		var words []string
		for _, item := range items {
			words = append(words, item.Word)
		}
		want := []string{"chiasmus", "anaphora", "zeugma"}
		if len(words) != len(want) {
			t.Fatalf("got %v want %v", words, want)
		}
		for i := range want {
			if words[i] != want[i] {
				t.Fatalf("got %v want %v", words, want)
			}
		}
		return nil
	})
}

func TestDecayDoesNotTouchEntity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		_, err := tx.CreateMasteryEntity(ctx, domain.MasteryEntity{Key: "topic:graphs", Category: "cs", Mastery: 80, LastTouchedAt: t0},
			domain.CauseManualEdit, "seed")
		if err != nil {
			return err
		}
		_, err = tx.AppendDecayAudit(ctx, domain.DecayAudit{EntityKey: "topic:graphs", At: t0.Add(time.Hour), NewValue: 76, Cause: domain.CauseDecayTick})
		return err
	})

	_ = st.Read(ctx, func(tx *store.Tx) error {
		value, err := tx.ReadLatestMastery(ctx, "topic:graphs")
		if err != nil || value != 76 {
			t.Fatalf("latest mastery = %d, %v", value, err)
		}
		entity, err := tx.GetMasteryEntity(ctx, "topic:graphs")
		if err != nil {
			t.Fatalf("entity: %v", err)
		}
		if !entity.LastTouchedAt.Equal(t0) || entity.LastDecayAt == nil {
			t.Fatalf("decay must not count as a touch: %#v", entity)
		}
		return nil
	})

}

func TestSetDecayRuleKeepsOneRulePerSelector(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	selector := domain.DecaySelector{Keys: []string{"topic:b", "topic:a"}}
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		if _, err := tx.SetDecayRule(ctx, domain.DecayRule{Selector: selector, InactivityDays: 7, Fraction: 0.05, Floor: 1}, t0); err != nil {
			return err
		}
		if _, err := tx.SetDecayRule(ctx, domain.DecayRule{Selector: selector, InactivityDays: 14, Fraction: 0.1, Floor: 1}, t0); err != nil {
			return err
		}
		_, err := tx.DisableDecayRule(ctx, domain.DecaySelector{Keys: []string{"topic:a", "topic:b"}}, t0)
		return err
	})

	_ = st.Read(ctx, func(tx *store.Tx) error {
		rules, err := tx.ListDecayRules(ctx, false)
		if err != nil {
			t.Fatalf("rules: %v", err)
		}
		if len(rules) != 1 || rules[0].InactivityDays != 14 || rules[0].Enabled {
			t.Fatalf("unexpected rules %#v", rules)
		}
		events, err := tx.RuleEvents(ctx)
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		actions := []string{}
		for _, ev := range events {
			actions = append(actions, ev.Action)
		}
		if len(actions) != 3 || actions[0] != domain.RuleActivated || actions[1] != domain.RuleUpdated || actions[2] != domain.RuleDeactivated {
			t.Fatalf("unexpected rule events %v", actions)
		}
		return nil
	})
}

func TestConcurrentWritesSerialize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- st.Write(ctx, func(tx *store.Tx) error {
				_, err := tx.InsertVocabulary(ctx, domain.VocabularyItem{
					Word: string(rune('a'+i)) + "-word", NextDue: t0, CreatedAt: t0, State: domain.SM2State{EaseScaled: 2500},
				})
				return err
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
	}
	_ = st.Read(ctx, func(tx *store.Tx) error {
		stats, err := tx.VocabularyStats(ctx, t0, 3)
		if err != nil || stats.Total != 8 || stats.Due != 8 {
			t.Fatalf("stats %#v err %v", stats, err)
		}
		return nil
	})
}

func TestSettingsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	settings, err := cfg.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	ctx := context.Background()
	testsupport.MustWrite(t, st, func(tx *store.Tx) error { return tx.SaveSettings(ctx, settings, t0) })
	_ = st.Read(ctx, func(tx *store.Tx) error {
		got, err := tx.ReadSettings(ctx, "scorer.")
		if err != nil {
			t.Fatalf("read settings: %v", err)
		}
		if got["scorer.gap_threshold"] != "60" {
			t.Fatalf("unexpected scorer settings %v", got)
		}
		return nil
	})
}
