package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/store"
)

// Builder loads, folds and persists profile states against the store.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(opts Options, logger *slog.Logger) *Builder {
	return &Builder{opts: opts, logger: logging.NewComponentLogger(logger, "profile")}
}

// Options returns the derivation options.
func (b *Builder) Options() Options {
	return b.opts
}

// Result is a state together with its derived profile.
type Result struct {
	State   State
	Profile domain.Profile
	// Folded counts history events folded on top of the starting snapshot.
	Folded int
	// FromSnapshot reports whether a stored snapshot was reused.
	FromSnapshot bool
}

// Load computes the current profile inside tx without writing. It starts
// from the most recent valid snapshot and folds the remaining history.
func (b *Builder) Load(ctx context.Context, tx *store.Tx) (Result, error) {
	state := Empty()
	var res Result
	snap, ok, err := tx.ReadProfileSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	if ok {
		decoded, err := Decode(snap.Payload)
		if err != nil {
			logging.WarnWithContext(b.logger, "profile snapshot unreadable; folding from empty", "profile_snapshot_corrupt",
				logging.Int64("snapshot_id", snap.ID),
				logging.String(logging.FieldErrorHint, "run backfill to rewrite the snapshot"),
				logging.Error(err),
			)
		} else {
			state = decoded
			res.FromSnapshot = true
		}
	}
	entries, err := tx.ReadHistoryEntries(ctx, store.HistoryFilter{AfterID: state.LastEventID()})
	if err != nil {
		return Result{}, err
	}
	stale := 0
	for _, h := range entries {
		if h.Features.IsUnknown() {
			stale++
		}
		state = Fold(state, EntryFromHistory(h), b.opts)
	}
	if stale > 0 {
		b.logger.Debug("history entries without book features",
			logging.Int("count", stale),
			logging.String(logging.FieldEventType, "stale_feature"),
		)
	}
	res.State = state
	res.Folded = len(entries)
	res.Profile = Derive(state, b.opts)
	return res, nil
}

// Refresh computes the current profile and persists it as the current
// snapshot when anything was folded or no current snapshot exists.
func (b *Builder) Refresh(ctx context.Context, tx *store.Tx, now time.Time) (Result, error) {
	res, err := b.Load(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	snap, ok, err := tx.ReadProfileSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	if res.Folded == 0 && ok && snap.Current && snap.LastEventID == res.State.LastEventID() {
		return res, nil
	}
	if err := b.persist(ctx, tx, res.State, now); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Rebuild replays the whole history from an empty profile, drops every
// existing snapshot and persists the result as the current snapshot.
func (b *Builder) Rebuild(ctx context.Context, tx *store.Tx, now time.Time) (Result, error) {
	entries, err := tx.ReadHistoryEntries(ctx, store.HistoryFilter{})
	if err != nil {
		return Result{}, err
	}
	converted := make([]Entry, len(entries))
	for i, h := range entries {
		converted[i] = EntryFromHistory(h)
	}
	state := Build(converted, b.opts)
	if err := tx.InvalidateSnapshots(ctx); err != nil {
		return Result{}, err
	}
	if err := b.persist(ctx, tx, state, now); err != nil {
		return Result{}, err
	}
	b.logger.Info("profile rebuilt from history",
		logging.Int("events", len(entries)),
		logging.String(logging.FieldEventType, "profile_rebuilt"),
	)
	return Result{State: state, Profile: Derive(state, b.opts), Folded: len(entries)}, nil
}

func (b *Builder) persist(ctx context.Context, tx *store.Tx, state State, now time.Time) error {
	payload, err := Encode(state)
	if err != nil {
		return err
	}
	if _, err := tx.WriteProfileSnapshot(ctx, store.ProfileSnapshot{
		AsOf:        state.AsOf(),
		EventCount:  len(state.Entries),
		LastEventID: state.LastEventID(),
		Payload:     payload,
	}, now); err != nil {
		return fmt.Errorf("persist profile snapshot: %w", err)
	}
	return nil
}
