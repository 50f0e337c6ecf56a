package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shelfmind/internal/logs"
)

const sample = `{"ts":"2026-03-01T02:00:00Z","level":"info","msg":"readiness run finished","component":"recompute","run_id":"r1"}
{"ts":"2026-03-01T02:00:01Z","level":"warn","msg":"book features missing","component":"engine","event_type":"stale_features","book_id":7}
not json at all
{"ts":"2026-03-01T03:00:00Z","level":"error","msg":"decay rule failed","component":"decay","event_type":"decay_failed"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shelfmind.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestParseKeepsExtraFields(t *testing.T) {
	e := logs.Parse(`{"ts":"2026-03-01T02:00:01Z","level":"warn","msg":"m","component":"engine","book_id":7}`)
	if e.Level != "warn" || e.Component != "engine" || e.Message != "m" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Time.IsZero() {
		t.Fatal("expected timestamp to parse")
	}
	if keys := e.FieldKeys(); len(keys) != 1 || keys[0] != "book_id" {
		t.Fatalf("unexpected field keys %v", keys)
	}

	raw := logs.Parse("plain text")
	if raw.Message != "plain text" || raw.Level != "" {
		t.Fatalf("unexpected raw entry %+v", raw)
	}
}

func TestLastAppliesFilterThenLimit(t *testing.T) {
	path := writeLog(t, sample)

	all, offset, err := logs.Last(path, 0, logs.Filter{})
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(all) != 4 || offset == 0 {
		t.Fatalf("expected 4 entries and an offset, got %d at %d", len(all), offset)
	}

	warn, _, err := logs.Last(path, 0, logs.Filter{MinLevel: "warn"})
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(warn) != 2 || warn[0].Component != "engine" || warn[1].Component != "decay" {
		t.Fatalf("unexpected warn entries %+v", warn)
	}

	last, _, err := logs.Last(path, 1, logs.Filter{MinLevel: "info"})
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(last) != 1 || last[0].EventType != "decay_failed" {
		t.Fatalf("unexpected last entry %+v", last)
	}

	byComponent, _, err := logs.Last(path, 0, logs.Filter{Component: "RECOMPUTE"})
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if len(byComponent) != 1 || byComponent[0].Fields["run_id"] != "r1" {
		t.Fatalf("unexpected component entries %+v", byComponent)
	}
}

func TestLastMissingFile(t *testing.T) {
	entries, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 10, logs.Filter{})
	if err != nil || len(entries) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", entries, offset, err)
	}
}

func TestFilterValidate(t *testing.T) {
	if err := (logs.Filter{MinLevel: "loud"}).Validate(); err == nil {
		t.Fatal("expected unknown level to be rejected")
	}
	if err := (logs.Filter{MinLevel: "WARN"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFollowDeliversAppendedEntries(t *testing.T) {
	path := writeLog(t, sample)
	_, offset, err := logs.Last(path, 0, logs.Filter{})
	if err != nil {
		t.Fatalf("last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var (
		mu  sync.Mutex
		got []logs.Entry
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 20*time.Millisecond, logs.Filter{MinLevel: "warn"}, func(e logs.Entry) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, e)
			return nil
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	_, _ = f.WriteString(`{"ts":"2026-03-02T02:00:00Z","level":"info","msg":"quiet"}` + "\n")
	_, _ = f.WriteString(`{"ts":"2026-03-02T02:00:01Z","level":"warn","msg":"later"}` + "\n")
	_ = f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("follow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Message != "later" {
		t.Fatalf("unexpected followed entries %+v", got)
	}
}
