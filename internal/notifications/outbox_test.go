package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shelfmind/internal/clock"
	"shelfmind/internal/domain"
	"shelfmind/internal/notifications"
	"shelfmind/internal/store"
	"shelfmind/internal/targets"
	"shelfmind/internal/testsupport"
)

type recordingService struct {
	err    error
	events []notifications.Payload
}

func (s *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	if s.err != nil {
		return s.err
	}
	if event == notifications.EventBecameReady {
		s.events = append(s.events, payload)
	}
	return nil
}

func TestDueAt(t *testing.T) {
	created := time.Date(2024, time.November, 14, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		mode domain.ReminderMode
		want time.Time
		push bool
	}{
		{domain.ReminderOnReady, created, true},
		{domain.ReminderMonthly, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), true},
		{domain.ReminderQuarterly, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), true},
		{domain.ReminderManual, time.Time{}, false},
	}
	for _, tc := range cases {
		got, push := notifications.DueAt(tc.mode, created, time.UTC)
		if push != tc.push || !got.Equal(tc.want) {
			t.Fatalf("DueAt(%s) = %v, %v; want %v, %v", tc.mode, got, push, tc.want, tc.push)
		}
	}
	if got, _ := notifications.DueAt(domain.ReminderQuarterly, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), time.UTC); got.Month() != time.April {
		t.Fatalf("February rolls to April, got %v", got)
	}
}

type outboxFixture struct {
	st    *store.Store
	clk   *clock.Fake
	notes map[domain.ReminderMode]domain.Notification
}

func newOutbox(t *testing.T, modes ...domain.ReminderMode) outboxFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	f := outboxFixture{
		st:    testsupport.MustOpenStore(t, cfg),
		clk:   testsupport.NewFakeClock(),
		notes: map[domain.ReminderMode]domain.Notification{},
	}
	m := targets.NewManager(targets.Thresholds{Ready: 75, Preparing: 50}, nil)
	ctx := context.Background()
	for _, mode := range modes {
		book := testsupport.MustAddBook(t, f.st, testsupport.NewBook("Book "+string(mode)))
		testsupport.MustWrite(t, f.st, func(tx *store.Tx) error {
			target, _, err := m.Defer(ctx, tx, book.ID, "", mode, domain.ScoreResult{Score: 80}, testsupport.Epoch)
			if err != nil {
				return err
			}
			n, err := tx.AppendNotification(ctx, domain.Notification{
				TargetID:  target.ID,
				BookID:    book.ID,
				Kind:      domain.NotificationBecameReady,
				Score:     80,
				CreatedAt: testsupport.Epoch,
			})
			f.notes[mode] = n
			return err
		})
	}
	return f
}

func (f outboxFixture) pending(t *testing.T) int {
	t.Helper()
	var n int
	if err := f.st.Read(context.Background(), func(tx *store.Tx) error {
		notes, err := tx.PendingNotifications(context.Background(), 0)
		n = len(notes)
		return err
	}); err != nil {
		t.Fatalf("pending: %v", err)
	}
	return n
}

func TestDispatcherHonorsReminderModes(t *testing.T) {
	f := newOutbox(t, domain.ReminderOnReady, domain.ReminderManual, domain.ReminderMonthly)
	svc := &recordingService{}
	d := notifications.NewDispatcher(f.st, svc, f.clk, time.UTC, nil)

	report, err := d.Deliver(context.Background())
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if report.Delivered != 1 || report.Silenced != 1 || report.Deferred != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(svc.events) != 1 || svc.events[0]["title"] != "Book on_ready" {
		t.Fatalf("unexpected pushes %+v", svc.events)
	}
	if f.pending(t) != 1 {
		t.Fatal("the monthly reminder should still be pending")
	}

	f.clk.Set(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	report, err = d.Deliver(context.Background())
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if report.Delivered != 1 || len(svc.events) != 2 || f.pending(t) != 0 {
		t.Fatalf("monthly reminder not delivered: %+v", report)
	}
}

func TestDispatcherRetriesFailures(t *testing.T) {
	f := newOutbox(t, domain.ReminderOnReady)
	svc := &recordingService{err: errors.New("ntfy down")}
	d := notifications.NewDispatcher(f.st, svc, f.clk, time.UTC, nil)

	report, err := d.Deliver(context.Background())
	if err != nil {
		t.Fatalf("delivery failures must not surface: %v", err)
	}
	if report.Failed != 1 || f.pending(t) != 1 {
		t.Fatalf("failed record should stay pending: %+v", report)
	}

	var target domain.DeferredTarget
	_ = f.st.Read(context.Background(), func(tx *store.Tx) error {
		var err error
		target, err = tx.GetTarget(context.Background(), f.notes[domain.ReminderOnReady].TargetID)
		return err
	})
	if target.Status != domain.TargetReady {
		t.Fatalf("delivery failure must not change the target, got %s", target.Status)
	}

	svc.err = nil
	report, err = d.Deliver(context.Background())
	if err != nil || report.Delivered != 1 || f.pending(t) != 0 {
		t.Fatalf("retry failed: %+v, %v", report, err)
	}
}
