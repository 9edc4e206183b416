package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/matlog/internal/logger"
)

// legacySchema is the shape shipped before position was dropped and before
// links and submission counts existed.
const legacySchema = `
CREATE TABLE sessions (
    id TEXT PRIMARY KEY,
    date INTEGER NOT NULL,
    location TEXT,
    type TEXT NOT NULL,
    notes TEXT,
    satisfaction INTEGER NOT NULL CHECK (satisfaction BETWEEN 1 AND 5)
);
CREATE TABLE techniques (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    position TEXT,
    notes TEXT,
    timestamp INTEGER NOT NULL,
    session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL
);
CREATE TABLE submissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    name TEXT NOT NULL
);
CREATE TABLE tags (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL CHECK (category IN ('position', 'attribute', 'style', 'custom')),
    usage_count INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    is_custom INTEGER DEFAULT 0
);
CREATE TABLE technique_tags (
    technique_id TEXT NOT NULL REFERENCES techniques(id) ON DELETE CASCADE,
    tag_name TEXT NOT NULL REFERENCES tags(name) ON DELETE CASCADE,
    PRIMARY KEY (technique_id, tag_name)
);
INSERT INTO sessions (id, date, type, satisfaction) VALUES ('s1', 1700000000000, 'gi', 4);
INSERT INTO techniques (id, name, category, position, notes, timestamp, session_id)
    VALUES ('t1', 'Armbar', 'Submission', 'Mount', 'old notes', 1700000000000, 's1');
INSERT INTO submissions (session_id, name) VALUES ('s1', 'Armbar');
INSERT INTO tags (id, name, category, usage_count, created_at, is_custom) VALUES ('gi', 'Gi', 'style', 1, 1700000000000, 0);
INSERT INTO technique_tags (technique_id, tag_name) VALUES ('t1', 'Gi');
`

func openLegacy(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.db.Exec(legacySchema)
	require.NoError(t, err)
	return s
}

func columnsOf(t *testing.T, s *SQLiteStore, table string) []string {
	t.Helper()
	cols, err := tableColumns(context.Background(), s.db, table)
	require.NoError(t, err)
	return cols
}

func TestEnsureSchema_MigratesLegacyDatabase(t *testing.T) {
	ctx := context.Background()
	s := openLegacy(t)

	require.NoError(t, s.EnsureSchema(ctx))

	assert.NotContains(t, columnsOf(t, s, "techniques"), "position")
	assert.Contains(t, columnsOf(t, s, "techniques"), "links")
	assert.Contains(t, columnsOf(t, s, "submissions"), "count")

	tech, err := s.GetTechnique(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Armbar", tech.Name)
	assert.Equal(t, "old notes", tech.Notes)
	assert.Equal(t, "s1", tech.SessionID)
	assert.Equal(t, []string{"Gi"}, tech.Tags)

	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Armbar": 1}, sess.SubmissionCounts)

	// Rebuilt table still enforces its foreign keys and keeps the cascade.
	require.NoError(t, s.DeleteSession(ctx, "s1"))
	tech, err = s.GetTechnique(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, tech.SessionID)

	var idx int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_techniques_session'`).Scan(&idx))
	assert.Equal(t, 1, idx)

	// Second start is a no-op.
	require.NoError(t, s.EnsureSchema(ctx))
}

func TestMigrations_EachStepIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, m := range migrations {
		t.Run(m.name, func(t *testing.T) {
			err := m.apply(ctx, s)
			if err != nil {
				assert.True(t, IsDuplicateColumn(err), "unexpected error: %v", err)
			}
		})
	}
}

func TestDropColumn_FailureKeepsOriginalTable(t *testing.T) {
	ctx := context.Background()
	s := openLegacy(t)

	err := s.dropColumn(ctx, rebuildPlan{
		table:    "techniques",
		column:   "position",
		ddl:      techniquesTable,
		fixups:   []string{`UPDATE %s SET no_such_column = 1`},
		tempName: "techniques_rebuild",
	})
	require.Error(t, err)

	cols := columnsOf(t, s, "techniques")
	assert.Contains(t, cols, "position")

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM techniques`).Scan(&n))
	assert.Equal(t, 1, n)

	var temp int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE name = 'techniques_rebuild'`).Scan(&temp))
	assert.Zero(t, temp)

	var fk int
	require.NoError(t, s.db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestDropColumn_AbsentColumnNoop(t *testing.T) {
	s := newTestStore(t)

	err := s.dropColumn(context.Background(), rebuildPlan{
		table: "techniques", column: "position", ddl: techniquesTable, tempName: "techniques_rebuild",
	})
	require.NoError(t, err)
}

func TestMigrate_RealFailurePropagates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved := migrations
	t.Cleanup(func() { migrations = saved })
	migrations = append(append([]migration{}, saved...), migration{
		version: 99, name: "broken",
		apply: func(ctx context.Context, s *SQLiteStore) error { return errors.New("disk on fire") },
	})

	err := s.EnsureSchema(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestMigrate_RecordsSteps(t *testing.T) {
	s := newTestStore(t)

	var appliedAt int64
	require.NoError(t, s.db.QueryRow(`SELECT applied_at FROM schema_migrations WHERE version = 1`).Scan(&appliedAt))
	assert.WithinDuration(t, time.Now(), time.UnixMilli(appliedAt), time.Minute)
}

func TestIsDuplicateColumn(t *testing.T) {
	assert.True(t, IsDuplicateColumn(errors.New("sqlite3: SQL logic error: duplicate column name: count")))
	assert.False(t, IsDuplicateColumn(errors.New("no such table: submissions")))
	assert.False(t, IsDuplicateColumn(nil))
}
