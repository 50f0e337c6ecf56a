package daemon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shelfmind/internal/config"
	"shelfmind/internal/daemon"
	"shelfmind/internal/decay"
	"shelfmind/internal/logging"
	"shelfmind/internal/notifications"
	"shelfmind/internal/recompute"
	"shelfmind/internal/testsupport"
)

type countingJobs struct {
	mu        sync.Mutex
	readiness int
	decay     int
	delivery  int
	fail      bool
}

func (j *countingJobs) ReadinessTick(context.Context) (recompute.Report, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.readiness++
	if j.fail {
		return recompute.Report{}, errors.New("store unavailable")
	}
	return recompute.Report{RunID: "run"}, nil
}

func (j *countingJobs) TickDecay(context.Context) (decay.Report, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decay++
	return decay.Report{RunID: "run"}, nil
}

func (j *countingJobs) DeliverNotifications(context.Context) (notifications.DeliveryReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.delivery++
	return notifications.DeliveryReport{}, nil
}

func (j *countingJobs) counts() (int, int, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readiness, j.decay, j.delivery
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.Recomputer.TickHour = 2
		c.Daemon.DecayHour = 3
	}))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return cfg
}

func TestPollRunsTicksAtTheirHours(t *testing.T) {
	cfg := newConfig(t)
	clk := testsupport.NewFakeClock()
	jobs := &countingJobs{}
	d, err := daemon.New(cfg, jobs, daemon.Options{Clock: clk, Location: time.UTC}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status()
	wantReadiness := time.Date(2024, time.January, 2, 2, 0, 0, 0, time.UTC)
	if !status.Running || !status.NextReadiness.Equal(wantReadiness) {
		t.Fatalf("unexpected status %+v", status)
	}

	ctx := context.Background()
	d.Poll(ctx)
	if r, dc, n := jobs.counts(); r != 0 || dc != 0 || n != 1 {
		t.Fatalf("first poll ran readiness=%d decay=%d delivery=%d", r, dc, n)
	}

	clk.Set(time.Date(2024, time.January, 2, 2, 30, 0, 0, time.UTC))
	d.Poll(ctx)
	if r, dc, _ := jobs.counts(); r != 1 || dc != 0 {
		t.Fatalf("after tick hour readiness=%d decay=%d", r, dc)
	}

	clk.Set(time.Date(2024, time.January, 2, 3, 0, 0, 0, time.UTC))
	d.Poll(ctx)
	d.Poll(ctx)
	if r, dc, n := jobs.counts(); r != 1 || dc != 1 || n != 4 {
		t.Fatalf("after decay hour readiness=%d decay=%d delivery=%d", r, dc, n)
	}

	next := d.Status().NextDecay
	if want := time.Date(2024, time.January, 3, 3, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next decay = %s, want %s", next, want)
	}
}

func TestFailedTickWaitsForNextDay(t *testing.T) {
	cfg := newConfig(t)
	clk := testsupport.NewFakeClock()
	jobs := &countingJobs{fail: true}
	d, err := daemon.New(cfg, jobs, daemon.Options{Clock: clk, Location: time.UTC, RunOnStart: true}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	d.Poll(context.Background())
	clk.Advance(time.Minute)
	d.Poll(context.Background())
	if r, dc, n := jobs.counts(); r != 1 || dc != 1 || n != 2 {
		t.Fatalf("readiness=%d decay=%d delivery=%d", r, dc, n)
	}
}

func TestSingleInstanceLock(t *testing.T) {
	cfg := newConfig(t)
	jobs := &countingJobs{}
	first, err := daemon.New(cfg, jobs, daemon.Options{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := first.Start(); err == nil {
		t.Fatal("expected second start to fail")
	}

	second, err := daemon.New(cfg, jobs, daemon.Options{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(); err == nil {
		t.Fatal("expected lock contention")
	}

	first.Stop()
	if first.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := second.Start(); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	second.Stop()
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := newConfig(t)
	jobs := &countingJobs{}
	d, err := daemon.New(cfg, jobs, daemon.Options{Clock: testsupport.NewFakeClock()}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Fatal("expected Run before Start to fail")
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, _, n := jobs.counts(); n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first poll did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
