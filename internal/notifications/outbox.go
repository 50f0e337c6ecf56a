package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shelfmind/internal/clock"
	"shelfmind/internal/domain"
	"shelfmind/internal/logging"
	"shelfmind/internal/store"
)

const defaultBatch = 50

// DueAt returns when a record created at createdAt may be pushed under
// mode. Monthly and quarterly reminders wait for the first day of the next
// calendar month or quarter in loc. Manual reminders are never pushed and
// report ok=false.
func DueAt(mode domain.ReminderMode, createdAt time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := createdAt.In(loc)
	switch mode {
	case domain.ReminderManual:
		return time.Time{}, false
	case domain.ReminderMonthly:
		return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, loc), true
	case domain.ReminderQuarterly:
		next := ((int(local.Month())-1)/3+1)*3 + 1
		return time.Date(local.Year(), time.Month(next), 1, 0, 0, 0, 0, loc), true
	default:
		return createdAt, true
	}
}

// DeliveryReport summarizes one outbox pass.
type DeliveryReport struct {
	Delivered int `json:"delivered" yaml:"delivered"`
	Silenced  int `json:"silenced" yaml:"silenced"`
	Deferred  int `json:"deferred" yaml:"deferred"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Dispatcher drains the notification outbox.
type Dispatcher struct {
	store   *store.Store
	service Service
	clock   clock.Clock
	loc     *time.Location
	logger  *slog.Logger
}

// NewDispatcher wires a dispatcher. loc anchors monthly and quarterly
// reminder boundaries.
func NewDispatcher(st *store.Store, svc Service, clk clock.Clock, loc *time.Location, logger *slog.Logger) *Dispatcher {
	if svc == nil {
		svc = noopService{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{
		store:   st,
		service: svc,
		clock:   clk,
		loc:     loc,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

type pending struct {
	note   domain.Notification
	target domain.DeferredTarget
	book   domain.Book
}

// Deliver pushes every due outbox record. Records of manual-reminder
// targets are marked delivered without a push. Records whose target is
// gone were removed with it by the store.
func (d *Dispatcher) Deliver(ctx context.Context) (DeliveryReport, error) {
	var (
		report DeliveryReport
		batch  []pending
	)
	if err := d.store.Read(ctx, func(tx *store.Tx) error {
		notes, err := tx.PendingNotifications(ctx, defaultBatch)
		if err != nil {
			return err
		}
		for _, n := range notes {
			target, err := tx.GetTarget(ctx, n.TargetID)
			if err != nil {
				return err
			}
			book, err := tx.GetBook(ctx, n.BookID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			batch = append(batch, pending{note: n, target: target, book: book})
		}
		return nil
	}); err != nil {
		return report, err
	}

	now := d.clock.Now()
	for _, p := range batch {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		attrs := []logging.Attr{
			logging.String("notification_id", p.note.ID),
			logging.Int64(logging.FieldTargetID, p.note.TargetID),
			logging.Int64(logging.FieldBookID, p.note.BookID),
		}

		due, push := DueAt(p.target.ReminderMode, p.note.CreatedAt, d.loc)
		if push && now.Before(due) {
			report.Deferred++
			d.logger.Debug("notification held for reminder cadence",
				logging.Args(append(attrs, logging.Time("due_at", due))...)...)
			continue
		}

		if push && !IsNoop(d.service) {
			err := d.service.Publish(ctx, EventBecameReady, Payload{
				"title":  p.book.Title,
				"author": p.book.Author,
				"score":  p.note.Score,
				"note":   p.target.Note,
			})
			if err != nil {
				report.Failed++
				logging.WarnWithContext(d.logger, "notification delivery failed; will retry", "notification_failed",
					append(attrs,
						logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
						logging.String(logging.FieldImpact, "reader not yet told the target is ready"),
						logging.Error(err),
					)...)
				if werr := d.store.Write(ctx, func(tx *store.Tx) error {
					return tx.RecordNotificationFailure(ctx, p.note.ID, err)
				}); werr != nil {
					return report, werr
				}
				continue
			}
		}

		if err := d.store.Write(ctx, func(tx *store.Tx) error {
			return tx.MarkNotificationDelivered(ctx, p.note.ID, now)
		}); err != nil {
			return report, err
		}
		if push {
			report.Delivered++
			d.logger.Info("notification delivered", logging.Args(attrs...)...)
		} else {
			report.Silenced++
			d.logger.Debug("manual reminder; notification marked delivered", logging.Args(attrs...)...)
		}
	}
	return report, nil
}
