package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"shelfmind/internal/config"
	"shelfmind/internal/store"
)

const defaultCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase opens the store, applying pending migrations, and runs its
// integrity check.
func CheckDatabase(ctx context.Context, cfg *config.Config) Result {
	const name = "Database"
	st, err := store.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Paths.DatabasePath, err)}
	}
	defer st.Close()
	if err := st.Check(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Paths.DatabasePath, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (integrity ok)", cfg.Paths.DatabasePath)}
}

// CheckHTTP verifies that a service answers at baseURL. Any response below
// 500 counts as reachable; authentication is exercised by real calls.
func CheckHTTP(ctx context.Context, name, baseURL string, timeout time.Duration) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
}

// serverRoot strips the topic path from an ntfy topic URL so the check never
// publishes.
func serverRoot(topicURL string) (string, error) {
	u, err := url.Parse(topicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("ntfy topic %q is not a URL", topicURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
