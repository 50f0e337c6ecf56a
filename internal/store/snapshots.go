package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ProfileSnapshot is a persisted, opaque profile state. The profile package
// owns the payload encoding.
type ProfileSnapshot struct {
	ID          int64
	AsOf        time.Time
	EventCount  int
	LastEventID int64
	Payload     []byte
	Current     bool
	CreatedAt   time.Time
}

// keptSnapshots bounds how many superseded snapshots survive a write. They
// are fold-forward starting points when a feature change invalidates the
// newest ones.
const keptSnapshots = 3

// WriteProfileSnapshot persists snap as the current snapshot and prunes
// invalid and surplus older rows.
func (t *Tx) WriteProfileSnapshot(ctx context.Context, snap ProfileSnapshot, now time.Time) (ProfileSnapshot, error) {
	if _, err := t.exec(ctx, builder.Update("profile_snapshots").Set("current", 0).Where(sq.Eq{"current": 1})); err != nil {
		return ProfileSnapshot{}, fmt.Errorf("retire snapshots: %w", err)
	}
	res, err := t.exec(ctx, builder.Insert("profile_snapshots").
		Columns("as_of", "event_count", "last_event_id", "payload", "valid", "current", "created_at").
		Values(formatTime(snap.AsOf), snap.EventCount, snap.LastEventID, string(snap.Payload), 1, 1, formatTime(now)))
	if err != nil {
		return ProfileSnapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if snap.ID, err = res.LastInsertId(); err != nil {
		return ProfileSnapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	if err := t.pruneSnapshots(ctx); err != nil {
		return ProfileSnapshot{}, err
	}
	snap.AsOf = snap.AsOf.UTC()
	snap.Current = true
	snap.CreatedAt = now.UTC()
	return snap, nil
}

func (t *Tx) pruneSnapshots(ctx context.Context) error {
	if _, err := t.exec(ctx, builder.Delete("profile_snapshots").Where(sq.Eq{"valid": 0})); err != nil {
		return fmt.Errorf("prune invalid snapshots: %w", err)
	}
	_, err := t.exec(ctx, builder.Delete("profile_snapshots").Where(sq.Expr(
		"id NOT IN (SELECT id FROM profile_snapshots ORDER BY last_event_id DESC, id DESC LIMIT ?)",
		keptSnapshots+1)))
	if err != nil {
		return fmt.Errorf("prune superseded snapshots: %w", err)
	}
	return nil
}

// CountProfileSnapshots returns the number of stored snapshot rows.
func (t *Tx) CountProfileSnapshots(ctx context.Context) (int, error) {
	row, err := t.queryRow(ctx, builder.Select("COUNT(*)").From("profile_snapshots"))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// ReadProfileSnapshot returns the most recent valid snapshot.
func (t *Tx) ReadProfileSnapshot(ctx context.Context) (ProfileSnapshot, bool, error) {
	row, err := t.queryRow(ctx, builder.Select("id", "as_of", "event_count", "last_event_id", "payload", "current", "created_at").
		From("profile_snapshots").
		Where(sq.Eq{"valid": 1}).
		OrderBy("last_event_id DESC", "id DESC").
		Limit(1))
	if err != nil {
		return ProfileSnapshot{}, false, err
	}
	var (
		snap               ProfileSnapshot
		asOf, created, pay string
		current            int
	)
	if err := row.Scan(&snap.ID, &asOf, &snap.EventCount, &snap.LastEventID, &pay, &current, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProfileSnapshot{}, false, nil
		}
		return ProfileSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.AsOf, err = parseTime(asOf); err != nil {
		return ProfileSnapshot{}, false, err
	}
	if snap.CreatedAt, err = parseTime(created); err != nil {
		return ProfileSnapshot{}, false, err
	}
	snap.Payload = []byte(pay)
	snap.Current = current == 1
	return snap, true, nil
}

// InvalidateSnapshots marks every snapshot unusable. Used by backfill.
func (t *Tx) InvalidateSnapshots(ctx context.Context) error {
	if _, err := t.exec(ctx, builder.Update("profile_snapshots").Set("valid", 0).Set("current", 0)); err != nil {
		return fmt.Errorf("invalidate snapshots: %w", err)
	}
	return nil
}

// retireCurrentSnapshot clears the current flag of snapshots older than at.
// They remain valid prefixes for folding forward.
func (t *Tx) retireCurrentSnapshot(ctx context.Context, at time.Time) error {
	_, err := t.exec(ctx, builder.Update("profile_snapshots").
		Set("current", 0).
		Where(sq.Eq{"current": 1}).
		Where(sq.LtOrEq{"as_of": formatTime(at)}))
	if err != nil {
		return fmt.Errorf("retire snapshot: %w", err)
	}
	return nil
}

// invalidateSnapshotsForBook drops snapshots that folded in any event of the
// book, since its features or pages no longer match what was folded.
func (t *Tx) invalidateSnapshotsForBook(ctx context.Context, bookID int64) error {
	row, err := t.queryRow(ctx, builder.Select("MIN(id)").From("completion_events").Where(sq.Eq{"book_id": bookID}))
	if err != nil {
		return err
	}
	var first sql.NullInt64
	if err := row.Scan(&first); err != nil {
		return fmt.Errorf("first event for book: %w", err)
	}
	if !first.Valid {
		return nil
	}
	_, err = t.exec(ctx, builder.Update("profile_snapshots").
		Set("valid", 0).
		Set("current", 0).
		Where(sq.GtOrEq{"last_event_id": first.Int64}))
	if err != nil {
		return fmt.Errorf("invalidate snapshots: %w", err)
	}
	return nil
}
