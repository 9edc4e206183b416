package store

import (
	"context"
	"database/sql"
	"strings"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertLocation records one use of a location name.
func (s *SQLiteStore) UpsertLocation(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertLocation(ctx, s.db, name)
}

func (s *SQLiteStore) upsertLocation(ctx context.Context, db execer, name string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO locations (name, usage_count, last_used) VALUES (?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			usage_count = usage_count + 1,
			last_used = excluded.last_used
	`, name, toMillis(s.now()))
	return err
}

const locationOrder = `ORDER BY usage_count DESC, last_used DESC`

// ListLocations returns all locations, most used first, then most recent.
func (s *SQLiteStore) ListLocations(ctx context.Context) ([]*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLocations(ctx, `SELECT id, name, usage_count, last_used FROM locations `+locationOrder)
}

// SearchLocations returns up to limit locations starting with prefix, ignoring case.
func (s *SQLiteStore) SearchLocations(ctx context.Context, prefix string, limit int) ([]*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLocations(ctx, `
		SELECT id, name, usage_count, last_used FROM locations
		WHERE name LIKE ? ESCAPE '\'
		`+locationOrder+`
		LIMIT ?
	`, escapeLike(strings.TrimSpace(prefix))+"%", limit)
}

func (s *SQLiteStore) queryLocations(ctx context.Context, query string, args ...any) ([]*Location, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []*Location{}
	for rows.Next() {
		var l Location
		var usage, lastUsed sql.NullInt64
		if err := rows.Scan(&l.ID, &l.Name, &usage, &lastUsed); err != nil {
			return nil, err
		}
		if usage.Valid {
			l.UsageCount = int(usage.Int64)
		}
		if lastUsed.Valid {
			l.LastUsed = fromMillis(lastUsed.Int64)
		}
		locations = append(locations, &l)
	}
	return locations, rows.Err()
}
