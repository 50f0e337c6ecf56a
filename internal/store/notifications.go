package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"shelfmind/internal/domain"
)

// AppendNotification adds a record to the notification outbox.
func (t *Tx) AppendNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Kind == "" {
		return domain.Notification{}, domain.NewValidationError("kind", "required")
	}
	_, err := t.exec(ctx, builder.Insert("notifications").
		Columns("id", "target_id", "book_id", "kind", "score", "created_at").
		Values(n.ID, n.TargetID, n.BookID, n.Kind, n.Score, formatTime(n.CreatedAt)))
	if err != nil {
		return domain.Notification{}, wrapConstraint(fmt.Errorf("insert notification: %w", err), "target_id", "unknown target")
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return n, nil
}

// NotificationFilter narrows ListNotifications.
type NotificationFilter struct {
	PendingOnly bool
	TargetID    int64
	Limit       uint64
}

// ListNotifications returns outbox records oldest first.
func (t *Tx) ListNotifications(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error) {
	q := builder.Select("id", "target_id", "book_id", "kind", "score", "created_at", "delivered_at").
		From("notifications").
		OrderBy("created_at", "rowid")
	if filter.PendingOnly {
		q = q.Where(sq.Eq{"delivered_at": nil})
	}
	if filter.TargetID > 0 {
		q = q.Where(sq.Eq{"target_id": filter.TargetID})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		var (
			n         domain.Notification
			created   string
			delivered sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.TargetID, &n.BookID, &n.Kind, &n.Score, &created, &delivered); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if n.DeliveredAt, err = parseNullTime(delivered); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// PendingNotifications returns undelivered outbox records oldest first.
func (t *Tx) PendingNotifications(ctx context.Context, limit uint64) ([]domain.Notification, error) {
	return t.ListNotifications(ctx, NotificationFilter{PendingOnly: true, Limit: limit})
}

// MarkNotificationDelivered stamps a record as delivered.
func (t *Tx) MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error {
	res, err := t.exec(ctx, builder.Update("notifications").
		Set("delivered_at", formatTime(at)).
		Set("attempts", sq.Expr("attempts + 1")).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("notification %s", id)
	}
	return nil
}

// RecordNotificationFailure keeps a record pending and remembers the error.
func (t *Tx) RecordNotificationFailure(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := t.exec(ctx, builder.Update("notifications").
		Set("attempts", sq.Expr("attempts + 1")).
		Set("last_error", msg).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("record notification failure: %w", err)
	}
	return nil
}
