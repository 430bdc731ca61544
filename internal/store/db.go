package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the garden SQLite database.
//
// The handle is limited to a single open connection. All components share it,
// so at most one transaction is ever in flight.
type DB struct {
	*sql.DB
	Path string

	log     *zap.Logger
	matcher DuplicateMatcher
	now     func() time.Time
	ready   atomic.Bool
}

// Option configures a DB at construction time.
type Option func(*DB)

// WithLogger sets the logger used for repairs and migration progress.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.log = l
		}
	}
}

// WithClock overrides the time source. Used by tests to age interactions.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// WithDuplicateMatcher replaces the default duplicate-detection heuristic.
func WithDuplicateMatcher(m DuplicateMatcher) Option {
	return func(db *DB) {
		if m != nil {
			db.matcher = m
		}
	}
}

// DefaultDBPath returns the default database path: ~/.garden/garden.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".garden", "garden.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return openWith(sqlDB, path, opts)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory(opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return openWith(sqlDB, ":memory:", opts)
}

func openWith(sqlDB *sql.DB, path string, opts []Option) (*DB, error) {
	db := Wrap(sqlDB, path, opts...)
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Wrap builds a DB around an existing connection without configuring or
// migrating it. The returned handle is not ready until Migrate succeeds.
func Wrap(sqlDB *sql.DB, path string, opts ...Option) *DB {
	// :memory: databases are per-connection, and the store relies on a single
	// shared connection for its transaction model anyway.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{
		DB:      sqlDB,
		Path:    path,
		log:     zap.NewNop(),
		matcher: DetailTokenMatcher{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Ready reports whether migrations have completed on this handle.
func (db *DB) Ready() bool {
	return db.ready.Load()
}

// Logger returns the logger attached to this handle.
func (db *DB) Logger() *zap.Logger {
	return db.log
}

func (db *DB) nowMillis() int64 {
	return db.now().UnixMilli()
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (db *DB) setForeignKeys(ctx context.Context, on bool) error {
	p := "PRAGMA foreign_keys=OFF"
	if on {
		p = "PRAGMA foreign_keys=ON"
	}
	if _, err := db.ExecContext(ctx, p); err != nil {
		return fmt.Errorf("pragma %q: %w", p, err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
