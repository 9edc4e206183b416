package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// migration is one forward-only schema step. apply must be idempotent:
// running it against an already migrated database is a no-op or returns an
// error for which IsDuplicateColumn reports true.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, s *SQLiteStore) error
}

// migrations run in order. Never reorder or renumber released steps.
var migrations = []migration{
	{1, "drop_techniques_position", func(ctx context.Context, s *SQLiteStore) error {
		return s.dropColumn(ctx, rebuildPlan{
			table:    "techniques",
			column:   "position",
			ddl:      techniquesTable,
			indexes:  techniqueIndexes,
			fixups:   []string{`UPDATE %s SET session_id = NULL WHERE session_id IS NOT NULL AND session_id NOT IN (SELECT id FROM sessions)`},
			tempName: "techniques_rebuild",
		})
	}},
	{2, "add_submissions_count", func(ctx context.Context, s *SQLiteStore) error {
		_, err := s.db.ExecContext(ctx, `ALTER TABLE submissions ADD COLUMN count INTEGER DEFAULT 1`)
		return err
	}},
	{3, "add_techniques_links", func(ctx context.Context, s *SQLiteStore) error {
		_, err := s.db.ExecContext(ctx, `ALTER TABLE techniques ADD COLUMN links TEXT`)
		return err
	}},
	{4, "create_technique_vectors", func(ctx context.Context, s *SQLiteStore) error {
		_, err := s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS technique_vectors (
				technique_id TEXT PRIMARY KEY REFERENCES techniques(id) ON DELETE CASCADE,
				embedding BLOB NOT NULL
			)`)
		return err
	}},
}

// IsDuplicateColumn reports whether err is SQLite refusing to add a column
// that already exists, which is the normal outcome on every run after the first.
func IsDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}

// migrate applies every step not yet recorded in schema_migrations.
// Caller holds s.mu.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := m.apply(ctx, s); err != nil {
			if !IsDuplicateColumn(err) {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
			s.log.Debug("migration already applied", "version", m.version, "name", m.name)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, toMillis(s.now())); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		s.log.Info("migration recorded", "version", m.version, "name", m.name)
	}
	return nil
}

func (s *SQLiteStore) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tableColumns lists a table's columns in declaration order.
func tableColumns(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid, notNull, pk int
		var name, typ string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// rebuildPlan describes a copy-to-new-table rebuild that removes a column.
type rebuildPlan struct {
	table    string
	column   string
	ddl      string   // CREATE TABLE IF NOT EXISTS <table> (...) for the target shape
	indexes  []string // recreated after the rename
	fixups   []string // run against the new table before the swap; %s is its name
	tempName string
}

// dropColumn rebuilds plan.table without plan.column. The whole sequence runs
// in one transaction with foreign keys off on a pinned connection, so a failed
// step rolls back to the original table.
func (s *SQLiteStore) dropColumn(ctx context.Context, plan rebuildPlan) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	cols, err := tableColumns(ctx, conn, plan.table)
	if err != nil {
		return err
	}
	if !containsString(cols, plan.column) {
		return nil
	}

	// foreign_keys cannot change inside a transaction.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	defer conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ddl := strings.Replace(plan.ddl, "IF NOT EXISTS "+plan.table, plan.tempName, 1)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+plan.tempName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", plan.tempName, err)
	}

	newCols, err := tableColumns(ctx, tx, plan.tempName)
	if err != nil {
		return err
	}
	var keep []string
	for _, c := range newCols {
		if containsString(cols, c) {
			keep = append(keep, c)
		}
	}
	colList := `"` + strings.Join(keep, `", "`) + `"`
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		plan.tempName, colList, colList, plan.table)); err != nil {
		return fmt.Errorf("copy %s: %w", plan.table, err)
	}
	for _, f := range plan.fixups {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(f, plan.tempName)); err != nil {
			return fmt.Errorf("fixup %s: %w", plan.tempName, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+plan.table); err != nil {
		return fmt.Errorf("drop %s: %w", plan.table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", plan.tempName, plan.table)); err != nil {
		return fmt.Errorf("rename %s: %w", plan.tempName, err)
	}
	for _, idx := range plan.indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("recreate index: %w", err)
		}
	}

	violations, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_check(%s)", plan.table))
	if err != nil {
		return err
	}
	bad := violations.Next()
	violations.Close()
	if bad {
		return fmt.Errorf("rebuild %s: foreign key violations after copy", plan.table)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("dropped column", "table", plan.table, "column", plan.column, "kept", len(keep))
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
