package daemonctl_test

import (
	"os"
	"testing"

	"github.com/gofrs/flock"

	"shelfmind/internal/daemonctl"
	"shelfmind/internal/testsupport"
)

func TestProbeSeesHeldLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	status, err := daemonctl.Probe(cfg)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if status.Running {
		t.Fatal("no lock file means no daemon")
	}

	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	if err := daemonctl.WritePID(cfg.PIDPath()); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	// flock locks are per open file description, so a second handle in the
	// same process contends like another process would.
	status, err = daemonctl.Probe(cfg)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, err := daemonctl.Stop(cfg, 0); err == nil {
		t.Fatal("Stop must refuse to signal the current process")
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	status, err = daemonctl.Probe(cfg)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if status.Running {
		t.Fatal("released lock must read as stopped")
	}
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	testsupport.WriteFile(t, cfg.PIDPath(), "not-a-pid\n")
	if _, err := daemonctl.ReadPID(cfg.PIDPath()); err == nil {
		t.Fatal("expected malformed pid error")
	}
}
