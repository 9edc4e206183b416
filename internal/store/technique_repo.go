package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Technique CRUD
// =============================================================================

func validateTechnique(t *Technique) error {
	if t == nil {
		return fmt.Errorf("%w: technique is required", ErrInvalidTechnique)
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTechnique)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTechnique)
	}
	if t.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidTechnique)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTechnique, t.Category)
	}
	if len(t.Links) > MaxLinks {
		return fmt.Errorf("%w: at most %d links allowed", ErrInvalidTechnique, MaxLinks)
	}
	return nil
}

// normalizeTags trims, drops blanks and removes duplicates that would map to
// the same tag id. First spelling wins.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		id := TagID(name)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, name)
	}
	return out
}

// UpsertTechnique inserts or fully replaces a technique and its tag set.
// Tag usage counts track the number of associations, so re-saving the same
// tags leaves them unchanged. A tag that fails to attach is logged and skipped.
// Custom tags the previous tag set held and nothing uses any more are swept.
func (s *SQLiteStore) UpsertTechnique(ctx context.Context, t *Technique) error {
	if err := validateTechnique(t); err != nil {
		return err
	}
	t.Tags = normalizeTags(t.Tags)
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now()
	}
	// Stored with millisecond precision.
	t.Timestamp = time.UnixMilli(t.Timestamp.UnixMilli())

	links, err := json.Marshal(nonNilStrings(t.Links))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var sessionID sql.NullString
		if t.SessionID != "" {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, t.SessionID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				sessionID = nullString(t.SessionID)
			} else {
				s.log.Debug("technique references unknown session, storing without it",
					"technique", t.ID, "session", t.SessionID)
			}
		}

		previous, err := techniqueTagsTx(ctx, tx, t.ID)
		if err != nil {
			return err
		}

		// Release the usage held by the previous tag set.
		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET usage_count = max(usage_count - 1, 0)
			WHERE name IN (SELECT tag_name FROM technique_tags WHERE technique_id = ?)
		`, t.ID); err != nil {
			return err
		}

		// ON CONFLICT DO UPDATE keeps the row in place; REPLACE would delete it
		// and fire the cascades on technique_tags and session_techniques.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO techniques (id, name, category, notes, links, timestamp, session_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				notes = excluded.notes,
				links = excluded.links,
				timestamp = excluded.timestamp,
				session_id = excluded.session_id
		`, t.ID, strings.TrimSpace(t.Name), string(t.Category), nullString(t.Notes), string(links),
			toMillis(t.Timestamp), sessionID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM technique_tags WHERE technique_id = ?`, t.ID); err != nil {
			return err
		}

		attached := make([]string, 0, len(t.Tags))
		for _, name := range t.Tags {
			stored, err := s.attachTag(ctx, tx, t.ID, name)
			if err != nil {
				s.log.Warn("failed to attach tag", "technique", t.ID, "tag", name, "error", err)
				continue
			}
			attached = append(attached, stored)
		}

		if err := writeVector(ctx, tx, t.ID, techniqueFeatures(t.Name, t.Category, attached)); err != nil {
			s.log.Warn("failed to index technique vector", "technique", t.ID, "error", err)
		}

		// Custom tags this save stopped using are swept. Unused tags created
		// on their own are left alone.
		for _, name := range previous {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM tags WHERE name = ? AND is_custom = 1 AND usage_count <= 0`, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// attachTag ensures the tag exists, links it and bumps its usage inside a
// savepoint. Returns the stored spelling of the tag name.
func (s *SQLiteStore) attachTag(ctx context.Context, tx *sql.Tx, techniqueID, name string) (string, error) {
	id := TagID(name)
	var stored string
	err := savepoint(ctx, tx, "attach_tag", func() error {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tags (id, name, category, usage_count, created_at, is_custom)
			VALUES (?, ?, ?, 0, ?, 1)
		`, id, name, string(TagCustom), toMillis(s.now())); err != nil {
			return err
		}
		// A differently cased spelling may already own the id.
		if err := tx.QueryRowContext(ctx, `SELECT name FROM tags WHERE id = ? OR name = ? LIMIT 1`, id, name).Scan(&stored); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO technique_tags (technique_id, tag_name) VALUES (?, ?)`, techniqueID, stored); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE tags SET usage_count = usage_count + 1 WHERE name = ?`, stored)
		return err
	})
	return stored, err
}

const techniqueColumns = `id, name, category, notes, links, timestamp, session_id`

// GetTechnique retrieves a technique by ID with its tags.
func (s *SQLiteStore) GetTechnique(ctx context.Context, id string) (*Technique, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	techniques, err := s.queryTechniques(ctx, `SELECT `+techniqueColumns+` FROM techniques WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(techniques) == 0 {
		return nil, ErrNotFound
	}
	return techniques[0], nil
}

// GetTechniques returns all techniques, newest first.
func (s *SQLiteStore) GetTechniques(ctx context.Context) ([]*Technique, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTechniques(ctx, `SELECT `+techniqueColumns+` FROM techniques ORDER BY timestamp DESC`)
}

// GetTechniquesBySession returns techniques whose sessionId is sessionID.
func (s *SQLiteStore) GetTechniquesBySession(ctx context.Context, sessionID string) ([]*Technique, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTechniques(ctx, `
		SELECT `+techniqueColumns+` FROM techniques
		WHERE session_id = ?
		ORDER BY timestamp DESC
	`, sessionID)
}

// GetRecentTechniques returns at most limit techniques, newest first.
func (s *SQLiteStore) GetRecentTechniques(ctx context.Context, limit int) ([]*Technique, error) {
	if limit <= 0 {
		return []*Technique{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTechniques(ctx, `
		SELECT `+techniqueColumns+` FROM techniques
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
}

// DeleteTechnique removes a technique. Tag links, session links and its
// vector cascade. Custom tags left unused are then swept; the number swept
// is returned.
func (s *SQLiteStore) DeleteTechnique(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET usage_count = max(usage_count - 1, 0)
			WHERE name IN (SELECT tag_name FROM technique_tags WHERE technique_id = ?)
		`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM techniques WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed, err := s.cleanupOrphanedTags(ctx)
	if err != nil {
		s.log.Warn("orphan tag sweep failed", "technique", id, "error", err)
		return 0, nil
	}
	return removed, nil
}

// LinkTechniqueSession sets a technique's weak session reference.
func (s *SQLiteStore) LinkTechniqueSession(ctx context.Context, techniqueID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE techniques SET session_id = ? WHERE id = ?`,
		nullString(sessionID), techniqueID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// queryTechniques scans technique rows, then hydrates tags per row. Rows are
// fully read before hydrating because the pool holds a single connection.
func (s *SQLiteStore) queryTechniques(ctx context.Context, query string, args ...any) ([]*Technique, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	techniques := []*Technique{}
	for rows.Next() {
		t, err := scanTechnique(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		techniques = append(techniques, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, t := range techniques {
		tags, err := s.techniqueTags(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.Tags = tags
	}
	return techniques, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTechnique(row rowScanner) (*Technique, error) {
	var t Technique
	var category string
	var notes, links, sessionID sql.NullString
	var ts int64
	if err := row.Scan(&t.ID, &t.Name, &category, &notes, &links, &ts, &sessionID); err != nil {
		return nil, err
	}
	t.Category = Category(category)
	t.Timestamp = fromMillis(ts)
	if notes.Valid {
		t.Notes = notes.String
	}
	if sessionID.Valid {
		t.SessionID = sessionID.String
	}
	if links.Valid && links.String != "" {
		json.Unmarshal([]byte(links.String), &t.Links)
	}
	if len(t.Links) == 0 {
		t.Links = nil
	}
	return &t, nil
}

func (s *SQLiteStore) techniqueTags(ctx context.Context, techniqueID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_name FROM technique_tags WHERE technique_id = ? ORDER BY rowid`, techniqueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func techniqueTagsTx(ctx context.Context, tx *sql.Tx, techniqueID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT tag_name FROM technique_tags WHERE technique_id = ?`, techniqueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
