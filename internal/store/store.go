package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"shelfmind/internal/config"
	"shelfmind/internal/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// builder produces '?'-placeholder SQL for sqlite.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Store is the single transactional store.
type Store struct {
	db      *sql.DB
	path    string
	dateLoc *time.Location
	writeMu sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

// WithDateLocation sets the zone calendar dates (vocabulary due dates) are
// interpreted in. Defaults to UTC.
func WithDateLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.dateLoc = loc
		}
	}
}

// Open initializes or connects to the database configured in cfg and applies
// pending migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.Paths.DatabasePath, WithDateLocation(cfg.SM2Location()))
}

// OpenPath opens the database at path.
func OpenPath(path string, opts ...Option) (*Store, error) {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	db, err := sql.Open("sqlite", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{db: db, path: path, dateLoc: time.UTC}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations sub-fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tx is a store transaction. All repository operations hang off Tx so that
// callers compose several of them atomically.
type Tx struct {
	tx  *sql.Tx
	loc *time.Location
}

// Write runs fn in a serialized write transaction. The transaction commits
// only when fn returns nil. A domain.ErrConflict from the first attempt is
// retried once with a fresh transaction; the second failure is returned.
func (s *Store) Write(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := retryOnBusy(ctx, func() error { return s.runTx(ctx, fn) })
	if errors.Is(err, domain.ErrConflict) {
		err = retryOnBusy(ctx, func() error { return s.runTx(ctx, fn) })
	}
	return err
}

// Read runs fn in a transaction that observes one consistent snapshot. Any
// writes attempted by fn are rolled back.
func (s *Store) Read(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&Tx{tx: tx, loc: s.dateLoc})
}

func (s *Store) runTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{tx: tx, loc: s.dateLoc}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// isConstraint reports sqlite constraint failures (UNIQUE, CHECK, FOREIGN KEY).
func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "SQLITE_CONSTRAINT")
}

func wrapConstraint(err error, field, message string) error {
	if isConstraint(err) {
		return domain.NewValidationError(field, message)
	}
	return err
}

func (t *Tx) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return t.tx.QueryRowContext(ctx, query, args...), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Check runs SQLite's quick_check and verifies that every target's
// checkpoint history is ordered. Damage comes back as a *domain.CorruptError.
func (s *Store) Check(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	var problems []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			rows.Close()
			return fmt.Errorf("quick check: %w", err)
		}
		if msg != "ok" {
			problems = append(problems, msg)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	if len(problems) > 0 {
		return &domain.CorruptError{
			Entity:     "database",
			ID:         s.path,
			Detail:     strings.Join(problems, "; "),
			RepairHint: "restore the database file from a backup",
		}
	}
	return s.Read(ctx, func(tx *Tx) error {
		targets, err := tx.ListTargets(ctx, TargetFilter{})
		if err != nil {
			return err
		}
		for _, t := range targets {
			if _, err := tx.ReadCheckpoints(ctx, t.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
