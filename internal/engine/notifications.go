package engine

import (
	"context"

	"shelfmind/internal/domain"
	"shelfmind/internal/notifications"
	"shelfmind/internal/store"
)

// DeliverNotifications sends due outbox records through the configured
// transport.
func (e *Engine) DeliverNotifications(ctx context.Context) (notifications.DeliveryReport, error) {
	return e.dispatcher.Deliver(ctx)
}

// ListNotifications returns outbox records oldest first.
func (e *Engine) ListNotifications(ctx context.Context, filter store.NotificationFilter) ([]domain.Notification, error) {
	var out []domain.Notification
	err := e.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListNotifications(ctx, filter)
		return err
	})
	return out, err
}

// SendTestNotification publishes a test event directly, bypassing the outbox.
func (e *Engine) SendTestNotification(ctx context.Context) error {
	if notifications.IsNoop(e.notifier) {
		return domain.NewValidationError("notifications.ntfy_topic", "no notification transport configured")
	}
	return e.notifier.Publish(ctx, notifications.EventTest, nil)
}
