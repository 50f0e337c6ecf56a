// Package daemonctl inspects and signals a running shelfmind daemon through
// its lock and pid files.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"shelfmind/internal/config"
)

// ProcessStatus describes the daemon process as seen from outside.
type ProcessStatus struct {
	Running  bool
	PID      int
	LockPath string
	PIDPath  string
}

// Probe reports whether a daemon holds the lock. The lock is probed with a
// non-blocking try-lock that is released immediately.
func Probe(cfg *config.Config) (ProcessStatus, error) {
	status := ProcessStatus{LockPath: cfg.LockPath(), PIDPath: cfg.PIDPath()}
	if _, err := os.Stat(status.LockPath); errors.Is(err, os.ErrNotExist) {
		return status, nil
	}
	lock := flock.New(status.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return status, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return status, nil
	}
	status.Running = true
	pid, err := ReadPID(status.PIDPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return status, err
	}
	status.PID = pid
	return status, nil
}

// ReadPID parses the daemon pid file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q is malformed", path)
	}
	return pid, nil
}

// WritePID records the current process id at path.
func WritePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// StopResult reports how the daemon was stopped.
type StopResult struct {
	PID        int
	WasRunning bool
	ForcedKill bool
}

// Stop sends SIGTERM to the daemon and waits up to grace for the lock to be
// released, then falls back to SIGKILL.
func Stop(cfg *config.Config, grace time.Duration) (StopResult, error) {
	status, err := Probe(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !status.Running {
		return StopResult{}, nil
	}
	result := StopResult{PID: status.PID, WasRunning: true}
	if status.PID <= 0 {
		return result, fmt.Errorf("daemon holds %s but no pid is recorded in %s", status.LockPath, status.PIDPath)
	}
	if status.PID == os.Getpid() {
		return result, fmt.Errorf("refusing to signal current process (pid %d)", status.PID)
	}
	if err := unix.Kill(status.PID, unix.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon %d: %w", status.PID, err)
	}
	if waitForRelease(cfg, grace) {
		return result, nil
	}
	if err := unix.Kill(status.PID, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", status.PID, err)
	}
	result.ForcedKill = true
	if err := os.Remove(status.PIDPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", status.PIDPath, err)
	}
	return result, nil
}

// Reload asks the daemon to log a configuration reload request.
func Reload(cfg *config.Config) (int, error) {
	status, err := Probe(cfg)
	if err != nil {
		return 0, err
	}
	if !status.Running || status.PID <= 0 {
		return 0, errors.New("shelfmind daemon is not running")
	}
	if err := unix.Kill(status.PID, unix.SIGHUP); err != nil {
		return status.PID, fmt.Errorf("signal daemon %d: %w", status.PID, err)
	}
	return status.PID, nil
}

func waitForRelease(cfg *config.Config, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := Probe(cfg)
		if err == nil && !status.Running {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}
