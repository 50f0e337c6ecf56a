package recompute_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmind/internal/clock"
	"shelfmind/internal/config"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/profile"
	"shelfmind/internal/recompute"
	"shelfmind/internal/scoring"
	"shelfmind/internal/store"
	"shelfmind/internal/targets"
	"shelfmind/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *store.Store
	clock   *clock.Fake
	builder *profile.Builder
	manager *targets.Manager
	rec     *recompute.Recomputer
}

// newFixture weights taste means by rating alone so complexity comfort is a
// plain mean of the rated books.
func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithConfig(func(c *config.Config) {
		c.Profile.Weighting = config.WeightingRating
	})}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	clk := testsupport.NewFakeClock()
	builder := profile.NewBuilder(profile.OptionsFromConfig(cfg), logging.NewNop())
	manager := targets.NewManager(targets.Thresholds{Ready: 75, Preparing: 50}, logging.NewNop())
	rec := recompute.New(st, builder, scoring.OptionsFromConfig(cfg), manager, clk, recompute.OptionsFromConfig(cfg), logging.NewNop())
	return &fixture{cfg: cfg, store: st, clock: clk, builder: builder, manager: manager, rec: rec}
}

func (f *fixture) deferTarget(t *testing.T, bookID int64) domain.DeferredTarget {
	t.Helper()
	ctx := context.Background()
	var target domain.DeferredTarget
	testsupport.MustWrite(t, f.store, func(tx *store.Tx) error {
		res, err := f.builder.Refresh(ctx, tx, f.clock.Now())
		if err != nil {
			return err
		}
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		target, _, err = f.manager.Defer(ctx, tx, bookID, "", domain.ReminderOnReady, scoring.Score(book, res.Profile, scoring.OptionsFromConfig(f.cfg)), f.clock.Now())
		return err
	})
	return target
}

// warmUp records one finished book without features so the completion rate
// is known while complexity comfort stays at its default.
func (f *fixture) warmUp(t *testing.T) {
	t.Helper()
	book := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Warm Up"))
	testsupport.MustLogCompletion(t, f.store, testsupport.Completed(book.ID, 4, f.clock.Now().Add(-time.Hour)))
}

func (f *fixture) complete(t *testing.T, bookID int64) {
	t.Helper()
	f.clock.Advance(time.Hour)
	testsupport.MustLogCompletion(t, f.store, testsupport.Completed(bookID, 5, f.clock.Now()))
}

func (f *fixture) checkpoints(t *testing.T, targetID int64) []domain.Checkpoint {
	t.Helper()
	var cps []domain.Checkpoint
	require.NoError(t, f.store.Read(context.Background(), func(tx *store.Tx) error {
		var err error
		cps, err = tx.ReadCheckpoints(context.Background(), targetID)
		return err
	}))
	return cps
}

func (f *fixture) target(t *testing.T, id int64) domain.DeferredTarget {
	t.Helper()
	var target domain.DeferredTarget
	require.NoError(t, f.store.Read(context.Background(), func(tx *store.Tx) error {
		var err error
		target, err = tx.GetTarget(context.Background(), id)
		return err
	}))
	return target
}

func (f *fixture) pending(t *testing.T) []domain.Notification {
	t.Helper()
	var notes []domain.Notification
	require.NoError(t, f.store.Read(context.Background(), func(tx *store.Tx) error {
		var err error
		notes, err = tx.PendingNotifications(context.Background(), 0)
		return err
	}))
	return notes
}

func TestCompletionsCarryTargetToReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	warmup := []domain.Book{
		testsupport.MustAddBook(t, f.store, testsupport.NewBook("Primer One", testsupport.Complexity(3))),
		testsupport.MustAddBook(t, f.store, testsupport.NewBook("Primer Two", testsupport.Complexity(3))),
	}
	for _, b := range warmup {
		testsupport.MustLogCompletion(t, f.store, testsupport.Completed(b.ID, 5, f.clock.Now().Add(-48*time.Hour+time.Duration(b.ID)*time.Hour)))
	}
	goal := testsupport.MustAddBook(t, f.store, testsupport.NewBook("The Far Tower", testsupport.Complexity(6)))
	steps := []domain.Book{
		testsupport.MustAddBook(t, f.store, testsupport.NewBook("Step Eight", testsupport.Complexity(8), testsupport.Pages(420))),
		testsupport.MustAddBook(t, f.store, testsupport.NewBook("Step Nine", testsupport.Complexity(9), testsupport.Pages(510))),
		testsupport.MustAddBook(t, f.store, testsupport.NewBook("Step Nine Again", testsupport.Complexity(9), testsupport.Pages(760))),
	}

	target := f.deferTarget(t, goal.ID)
	require.Equal(t, 63, target.CachedScore)
	require.Equal(t, domain.TargetPreparing, target.Status)

	wantScores := []int{68, 72, 75}
	for i, step := range steps {
		f.complete(t, step.ID)
		report, err := f.rec.Run(ctx, targets.TriggerCompletion)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Evaluated)
		assert.Equal(t, 1, report.Checkpoints)
		require.Len(t, report.Changes, 1)
		assert.Equal(t, wantScores[i], report.Changes[0].Score, "after %s", step.Title)
		if i < len(steps)-1 {
			assert.Empty(t, report.Notifications)
		} else {
			require.Len(t, report.Notifications, 1)
			assert.Equal(t, target.ID, report.Notifications[0].TargetID)
			assert.True(t, report.Changes[0].Transition.BecameReady)
		}
	}

	tick, err := f.rec.Run(ctx, targets.TriggerTick)
	require.NoError(t, err)
	assert.Zero(t, tick.Checkpoints)
	assert.Empty(t, tick.Notifications)

	cps := f.checkpoints(t, target.ID)
	require.Len(t, cps, 4)
	assert.Equal(t, targets.TriggerDefer, cps[0].Trigger)
	for i, cp := range cps[1:] {
		assert.Equal(t, targets.TriggerCompletion, cp.Trigger)
		assert.Equal(t, []int64{steps[i].ID}, cp.BooksHelped)
		assert.Equal(t, wantScores[i], cp.Score)
	}
	assert.Equal(t, 3, cps[3].Delta)

	got := f.target(t, target.ID)
	assert.Equal(t, domain.TargetReady, got.Status)
	assert.Equal(t, 75, got.CachedScore)
	require.NotNil(t, got.BecameReady)
	assert.True(t, got.BecameReady.Equal(cps[3].At))
	assert.Len(t, f.pending(t), 1)
}

func TestRunTwiceWritesOneCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Slow Burn", testsupport.Complexity(5)))
	target := f.deferTarget(t, book.ID)

	f.clock.Advance(8 * 24 * time.Hour)
	first, err := f.rec.Run(ctx, targets.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Checkpoints)

	second, err := f.rec.Run(ctx, targets.TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, second.Checkpoints)
	assert.Equal(t, 1, second.Evaluated)

	assert.Len(t, f.checkpoints(t, target.ID), 2)
}

func TestScoreDriftWaitsForInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.warmUp(t)
	book := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Moving Target", testsupport.Complexity(9)))
	target := f.deferTarget(t, book.ID)
	require.Equal(t, 60, target.CachedScore)

	testsupport.MustWrite(t, f.store, func(tx *store.Tx) error {
		return tx.UpsertBookFeatures(ctx, book.ID, domain.Features{Complexity: domain.IntPtr(5)}, f.clock.Now())
	})

	f.clock.Advance(24 * time.Hour)
	report, err := f.rec.Run(ctx, targets.TriggerTick)
	require.NoError(t, err)
	assert.Zero(t, report.Checkpoints)
	assert.Equal(t, target.CachedScore, f.target(t, target.ID).CachedScore)

	f.clock.Advance(7 * 24 * time.Hour)
	report, err = f.rec.Run(ctx, targets.TriggerTick)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checkpoints)
	got := f.target(t, target.ID)
	assert.Equal(t, domain.TargetReady, got.Status)
	assert.Equal(t, 77, got.CachedScore)
}

func TestTickSuppressesNotificationWhenConfigured(t *testing.T) {
	f := newFixture(t, testsupport.WithNotifyOnTick(false))
	ctx := context.Background()
	f.warmUp(t)
	book := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Quiet Arrival", testsupport.Complexity(9)))
	target := f.deferTarget(t, book.ID)
	require.NotEqual(t, domain.TargetReady, target.Status)

	testsupport.MustWrite(t, f.store, func(tx *store.Tx) error {
		return tx.UpsertBookFeatures(ctx, book.ID, domain.Features{Complexity: domain.IntPtr(5)}, f.clock.Now())
	})
	f.clock.Advance(8 * 24 * time.Hour)

	report, err := f.rec.Run(ctx, targets.TriggerTick)
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.True(t, report.Changes[0].Transition.BecameReady)
	assert.Empty(t, report.Notifications)
	assert.Empty(t, f.pending(t))
	assert.Equal(t, domain.TargetReady, f.target(t, target.ID).Status)
}

func TestCheckpointTimestampsStrictlyIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Same Instant", testsupport.Complexity(4)))
	target := f.deferTarget(t, book.ID)

	for i := 0; i < 3; i++ {
		_, err := f.rec.Run(ctx, targets.TriggerCompletion)
		require.NoError(t, err)
	}

	cps := f.checkpoints(t, target.ID)
	require.Len(t, cps, 4)
	for i := 1; i < len(cps); i++ {
		assert.True(t, cps[i].At.After(cps[i-1].At), "checkpoint %d at %s", i, cps[i].At)
	}
}

func TestFinishedTargetsAreNotScored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Kept", testsupport.Complexity(5)))
	dropped := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Dropped", testsupport.Complexity(5)))
	keptTarget := f.deferTarget(t, kept.ID)
	droppedTarget := f.deferTarget(t, dropped.ID)

	testsupport.MustWrite(t, f.store, func(tx *store.Tx) error {
		_, err := f.manager.Finish(ctx, tx, droppedTarget.ID, domain.TargetAbandoned, f.clock.Now())
		return err
	})
	f.clock.Advance(time.Minute)

	report, err := f.rec.Run(ctx, targets.TriggerCompletion)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, keptTarget.ID, report.Changes[0].TargetID)
	assert.Len(t, f.checkpoints(t, droppedTarget.ID), 1)
}

func TestBackfillMatchesLoadedProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, c := range []int{2, 4, 6, 8} {
		book := testsupport.MustAddBook(t, f.store, testsupport.NewBook(
			"Backfill "+string(rune('A'+i)),
			testsupport.Complexity(c),
			testsupport.Pages(200+50*i),
			testsupport.Themes("memory", "sea"),
			testsupport.Style(domain.StyleSparse),
		))
		f.complete(t, book.ID)
	}
	_, err := f.rec.Run(ctx, targets.TriggerTick)
	require.NoError(t, err)

	rebuilt, err := f.rec.Backfill(ctx)
	require.NoError(t, err)

	var loaded profile.Result
	require.NoError(t, f.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		loaded, err = f.builder.Load(ctx, tx)
		return err
	}))
	assert.True(t, loaded.FromSnapshot)
	assert.Equal(t, rebuilt, loaded.Profile)
	require.NotNil(t, rebuilt.ComplexityComfort)
	assert.InDelta(t, 5.0, *rebuilt.ComplexityComfort, 1e-9)
}

func TestCancelledRunStopsEarly(t *testing.T) {
	f := newFixture(t)
	book := testsupport.MustAddBook(t, f.store, testsupport.NewBook("Never Scored", testsupport.Complexity(5)))
	target := f.deferTarget(t, book.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.rec.RunWithProfile(ctx, targets.TriggerCompletion, domain.Profile{})
	require.Error(t, err)
	assert.Len(t, f.checkpoints(t, target.ID), 1)
}

func TestRunLogsCarryRunID(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	require.NoError(t, err)
	rec := recompute.New(f.store, f.builder, scoring.OptionsFromConfig(f.cfg), f.manager, f.clock, recompute.OptionsFromConfig(f.cfg), logger)

	report, err := rec.Run(context.Background(), targets.TriggerTick)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "readiness check complete", record["msg"])
	assert.Equal(t, report.RunID, record["run_id"])
	assert.Equal(t, string(targets.TriggerTick), record["trigger"])
}
