package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"shelfmind/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckHTTP(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ok.Close()
	if r := CheckHTTP(context.Background(), "svc", ok.URL, 0); !r.Passed {
		t.Fatalf("an answering server should pass, got %s", r.Detail)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	if r := CheckHTTP(context.Background(), "svc", broken.URL, 0); r.Passed {
		t.Fatal("a 502 should fail")
	}

	if r := CheckHTTP(context.Background(), "svc", " ", 0); r.Passed || r.Detail != "missing url" {
		t.Fatalf("unexpected result for empty url: %+v", r)
	}
}

func TestServerRootDropsTopic(t *testing.T) {
	got, err := serverRoot("https://ntfy.example.com/shelf-alerts")
	if err != nil || got != "https://ntfy.example.com" {
		t.Fatalf("serverRoot = %q, %v", got, err)
	}
	if _, err := serverRoot("shelf-alerts"); err == nil {
		t.Fatal("expected bare topic names to be rejected")
	}
}

func TestRunAllWithDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results := RunAll(context.Background(), cfg)
	if Failed(results) != 0 {
		t.Fatalf("expected a fresh config to pass, got %+v", results)
	}
	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"State directory", "Database", "Catalog", "Narrator", "Notifications", "Daemon"} {
		if !names[want] {
			t.Fatalf("missing %s check in %+v", want, results)
		}
	}
}
