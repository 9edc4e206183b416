// Package store provides SQLite-backed persistence for the training log.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/kittclouds/matlog/internal/logger"
)

// SQLiteStore is the SQLite-backed data store.
// Thread-safe for concurrent bridge callbacks.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// schema defines the base tables. Every statement is safe to re-run.
// Columns added after the first release are introduced by migrations.
const schema = `
-- Sessions (diary entries)
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    date INTEGER NOT NULL,
    location TEXT,
    type TEXT NOT NULL,
    notes TEXT,
    satisfaction INTEGER NOT NULL CHECK (satisfaction BETWEEN 1 AND 5)
);

CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date DESC);

` + techniquesTable + `

-- Submissions: normalized backing for TrainingSession.submissions/submissionCounts
CREATE TABLE IF NOT EXISTS submissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    count INTEGER DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_submissions_session ON submissions(session_id);

-- SessionTechniques: many-to-many junction
CREATE TABLE IF NOT EXISTS session_techniques (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    technique_id TEXT NOT NULL REFERENCES techniques(id) ON DELETE CASCADE,
    is_submission INTEGER DEFAULT 0,
    PRIMARY KEY (session_id, technique_id)
);

CREATE INDEX IF NOT EXISTS idx_session_techniques_technique ON session_techniques(technique_id);

-- Locations: autocomplete index, not a foreign key target
CREATE TABLE IF NOT EXISTS locations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    usage_count INTEGER DEFAULT 0,
    last_used INTEGER
);

-- Tags
CREATE TABLE IF NOT EXISTS tags (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL CHECK (category IN ('position', 'attribute', 'style', 'custom')),
    usage_count INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    is_custom INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tags_usage ON tags(usage_count DESC);

-- TechniqueTags: many-to-many junction
CREATE TABLE IF NOT EXISTS technique_tags (
    technique_id TEXT NOT NULL REFERENCES techniques(id) ON DELETE CASCADE,
    tag_name TEXT NOT NULL REFERENCES tags(name) ON DELETE CASCADE,
    PRIMARY KEY (technique_id, tag_name)
);

CREATE INDEX IF NOT EXISTS idx_technique_tags_tag ON technique_tags(tag_name);

-- Applied migration steps
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at INTEGER NOT NULL
);
`

// techniquesTable is shared by the base schema and the table rebuild migration.
const techniquesTable = `
-- Techniques (personal library)
CREATE TABLE IF NOT EXISTS techniques (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    notes TEXT,
    links TEXT,
    timestamp INTEGER NOT NULL,
    session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL
);
`

// techniqueIndexes are recreated whenever the techniques table is rebuilt.
var techniqueIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_techniques_timestamp ON techniques(timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_techniques_session ON techniques(session_id)`,
}

// NewSQLiteStore creates a new in-memory SQLite store with the schema applied.
func NewSQLiteStore(log *logger.Logger) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:", log)
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name and
// ensures the schema. Use ":memory:" for in-memory or a file path for
// persistent storage.
func NewSQLiteStoreWithDSN(dsn string, log *logger.Logger) (*SQLiteStore, error) {
	s, err := Open(dsn, log)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open connects to the database without touching the schema.
func Open(dsn string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := sql.Open("sqlite3", buildDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: the process is the only writer, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &SQLiteStore{db: db, log: log, now: time.Now}, nil
}

func buildDSN(dsn string) string {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// EnsureSchema enables foreign keys, creates missing tables and indexes, and
// runs pending migrations. Safe to call on every start.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	for _, stmt := range techniqueIndexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Counts returns the number of rows in each entity table.
func (s *SQLiteStore) Counts(ctx context.Context) (*Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM techniques),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM locations)
	`).Scan(&c.Techniques, &c.Sessions, &c.Tags, &c.Locations)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// savepoint runs fn inside a named savepoint so a failure undoes only fn's
// statements and leaves the enclosing transaction usable.
func savepoint(ctx context.Context, tx *sql.Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		tx.ExecContext(ctx, "RELEASE "+name)
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE "+name)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
