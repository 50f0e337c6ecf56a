package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shelfmind/internal/clock"
	"shelfmind/internal/config"
	"shelfmind/internal/decay"
	"shelfmind/internal/logging"
	"shelfmind/internal/notifications"
	"shelfmind/internal/recompute"
)

// Jobs is the work a daemon schedules. *engine.Engine satisfies it.
type Jobs interface {
	ReadinessTick(ctx context.Context) (recompute.Report, error)
	TickDecay(ctx context.Context) (decay.Report, error)
	DeliverNotifications(ctx context.Context) (notifications.DeliveryReport, error)
}

// Options tunes scheduling. Zero values take the configuration.
type Options struct {
	Clock    clock.Clock
	Location *time.Location
	// RunOnStart performs both ticks on the first poll instead of waiting
	// for their hours.
	RunOnStart bool
}

// Daemon coordinates the periodic ticks and enforces single-instance
// execution.
type Daemon struct {
	jobs         Jobs
	clock        clock.Clock
	loc          *time.Location
	tickHour     int
	decayHour    int
	pollInterval time.Duration
	runOnStart   bool
	logger       *slog.Logger

	lockPath string
	lock     *flock.Flock

	mu            sync.Mutex
	nextReadiness time.Time
	nextDecay     time.Time
	lastPoll      time.Time

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	LockFilePath  string
	NextReadiness time.Time
	NextDecay     time.Time
	LastPoll      time.Time
}

// New constructs a daemon around jobs.
func New(cfg *config.Config, jobs Jobs, opts Options, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || jobs == nil {
		return nil, errors.New("daemon requires config and jobs")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		jobs:         jobs,
		clock:        clk,
		loc:          loc,
		tickHour:     cfg.Recomputer.TickHour,
		decayHour:    cfg.Daemon.DecayHour,
		pollInterval: cfg.PollInterval(),
		runOnStart:   opts.RunOnStart,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and schedules the first ticks.
func (d *Daemon) Start() error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shelfmind daemon instance is already running")
	}

	now := d.clock.Now()
	d.mu.Lock()
	if d.runOnStart {
		d.nextReadiness, d.nextDecay = now, now
	} else {
		d.nextReadiness = clock.NextAt(now, d.tickHour, d.loc)
		d.nextDecay = clock.NextAt(now, d.decayHour, d.loc)
	}
	d.mu.Unlock()

	d.running.Store(true)
	d.logger.Info("shelfmind daemon started",
		logging.String("lock", d.lockPath),
		logging.Time("next_readiness_tick", d.nextReadiness),
		logging.Time("next_decay_tick", d.nextDecay),
		logging.Duration("poll_interval", d.pollInterval),
	)
	return nil
}

// Stop releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.Error(err),
		)
	}
	d.running.Store(false)
	d.logger.Info("shelfmind daemon stopped")
}

// Run polls until ctx is cancelled. Start must have succeeded.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not started")
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		d.Poll(ctx)
		timer.Reset(d.pollInterval)
	}
}

// Poll performs the work due at the current clock reading: the readiness
// tick, the decay tick and outbox delivery, in that order. Job failures are
// logged and retried on the next schedule.
func (d *Daemon) Poll(ctx context.Context) {
	now := d.clock.Now()
	d.mu.Lock()
	runReadiness := !now.Before(d.nextReadiness)
	runDecay := !now.Before(d.nextDecay)
	if runReadiness {
		d.nextReadiness = clock.NextAt(now, d.tickHour, d.loc)
	}
	if runDecay {
		d.nextDecay = clock.NextAt(now, d.decayHour, d.loc)
	}
	d.lastPoll = now
	d.mu.Unlock()

	if runReadiness {
		report, err := d.jobs.ReadinessTick(ctx)
		if err != nil {
			d.jobFailed("readiness tick failed", "readiness_tick_failed", err)
		} else {
			d.logger.Info("readiness tick complete",
				logging.String(logging.FieldRunID, report.RunID),
				logging.Int("evaluated", report.Evaluated),
				logging.Int("became_ready", len(report.Notifications)),
			)
		}
	}
	if runDecay {
		report, err := d.jobs.TickDecay(ctx)
		if err != nil {
			d.jobFailed("decay tick failed", "decay_tick_failed", err)
		} else {
			d.logger.Info("decay tick complete",
				logging.String(logging.FieldRunID, report.RunID),
				logging.Int("rules", report.Rules),
				logging.Int("decayed", len(report.Changes)),
			)
		}
	}

	report, err := d.jobs.DeliverNotifications(ctx)
	if err != nil {
		d.jobFailed("notification delivery failed", "notification_delivery_failed", err)
		return
	}
	if report.Delivered+report.Silenced+report.Failed > 0 {
		d.logger.Info("notifications processed",
			logging.Int("delivered", report.Delivered),
			logging.Int("silenced", report.Silenced),
			logging.Int("deferred", report.Deferred),
			logging.Int("failed", report.Failed),
		)
	}
}

func (d *Daemon) jobFailed(msg, eventType string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	logging.ErrorWithContext(d.logger, msg, eventType,
		logging.String(logging.FieldErrorHint, "the job runs again at its next scheduled time"),
		logging.Error(err),
	)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Running:       d.running.Load(),
		LockFilePath:  d.lockPath,
		NextReadiness: d.nextReadiness,
		NextDecay:     d.nextDecay,
		LastPoll:      d.lastPoll,
	}
}
