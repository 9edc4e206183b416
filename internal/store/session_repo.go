package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Session CRUD
// =============================================================================

func (s *SQLiteStore) validateSession(ts *TrainingSession) error {
	if ts == nil {
		return fmt.Errorf("%w: session is required", ErrInvalidSession)
	}
	if strings.TrimSpace(ts.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSession)
	}
	if ts.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidSession)
	}
	if ts.Date.After(s.now()) {
		return fmt.Errorf("%w: date cannot be in the future", ErrInvalidSession)
	}
	if !ts.Type.Valid() {
		return fmt.Errorf("%w: unknown session type %q", ErrInvalidSession, ts.Type)
	}
	return nil
}

// normalizeSubmissions returns unique, trimmed submission names in input order.
func normalizeSubmissions(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// normalizeCounts keys counts by trimmed submission name. Where several raw
// keys trim to the same name, the exact key wins.
func normalizeCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for raw, n := range counts {
		name := strings.TrimSpace(raw)
		if _, taken := out[name]; taken && raw != name {
			continue
		}
		out[name] = n
	}
	return out
}

// UpsertSession inserts or fully replaces a session together with its
// submissions and technique links. The location index is bumped on every save.
// Satisfaction outside 1..5 is rejected by the table's CHECK constraint.
func (s *SQLiteStore) UpsertSession(ctx context.Context, ts *TrainingSession) error {
	if err := s.validateSession(ts); err != nil {
		return err
	}
	submissions := normalizeSubmissions(ts.Submissions)
	counts := normalizeCounts(ts.SubmissionCounts)
	location := strings.TrimSpace(ts.Location)
	ts.Date = time.UnixMilli(ts.Date.UnixMilli())

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, date, location, type, notes, satisfaction)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				date = excluded.date,
				location = excluded.location,
				type = excluded.type,
				notes = excluded.notes,
				satisfaction = excluded.satisfaction
		`, ts.ID, toMillis(ts.Date), nullString(location), string(ts.Type),
			nullString(ts.Notes), ts.Satisfaction); err != nil {
			return err
		}

		if location != "" {
			if err := s.upsertLocation(ctx, tx, location); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM session_techniques WHERE session_id = ?`, ts.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE session_id = ?`, ts.ID); err != nil {
			return err
		}

		for _, name := range submissions {
			count, ok := counts[name]
			if !ok || count < 1 {
				count = 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO submissions (session_id, name, count) VALUES (?, ?, ?)`,
				ts.ID, name, count); err != nil {
				return err
			}
		}

		seen := make(map[string]bool, len(ts.TechniqueIDs))
		for _, techniqueID := range ts.TechniqueIDs {
			if techniqueID == "" || seen[techniqueID] {
				continue
			}
			seen[techniqueID] = true
			// Selecting from techniques skips ids that no longer exist.
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO session_techniques (session_id, technique_id, is_submission)
				SELECT ?, t.id, EXISTS(SELECT 1 FROM submissions sb WHERE sb.session_id = ? AND sb.name = t.name)
				FROM techniques t WHERE t.id = ?
			`, ts.ID, ts.ID, techniqueID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				s.log.Warn("session references unknown technique, skipping link",
					"session", ts.ID, "technique", techniqueID)
			}
		}
		return nil
	})
}

const sessionColumns = `id, date, location, type, notes, satisfaction`

// GetSession retrieves a session by ID with its submissions and technique ids.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*TrainingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions, err := s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}
	return sessions[0], nil
}

// GetSessions returns all sessions, most recent date first.
func (s *SQLiteStore) GetSessions(ctx context.Context) ([]*TrainingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY date DESC`)
}

// DeleteSession removes a session; submissions and technique links cascade.
// Techniques pointing at the session keep existing with their sessionId cleared.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE techniques SET session_id = NULL WHERE session_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...any) ([]*TrainingSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	sessions := []*TrainingSession{}
	for rows.Next() {
		var ts TrainingSession
		var date int64
		var sessionType string
		var location, notes sql.NullString
		if err := rows.Scan(&ts.ID, &date, &location, &sessionType, &notes, &ts.Satisfaction); err != nil {
			rows.Close()
			return nil, err
		}
		ts.Date = fromMillis(date)
		ts.Type = SessionType(sessionType)
		if location.Valid {
			ts.Location = location.String
		}
		if notes.Valid {
			ts.Notes = notes.String
		}
		sessions = append(sessions, &ts)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, ts := range sessions {
		if err := s.hydrateSession(ctx, ts); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *SQLiteStore) hydrateSession(ctx context.Context, ts *TrainingSession) error {
	ts.TechniqueIDs = []string{}
	ts.Submissions = []string{}
	ts.SubmissionCounts = map[string]int{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT technique_id FROM session_techniques WHERE session_id = ? ORDER BY rowid`, ts.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ts.TechniqueIDs = append(ts.TechniqueIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT name, count FROM submissions WHERE session_id = ? ORDER BY id`, ts.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count sql.NullInt64
		if err := rows.Scan(&name, &count); err != nil {
			return err
		}
		if _, dup := ts.SubmissionCounts[name]; !dup {
			ts.Submissions = append(ts.Submissions, name)
		}
		ts.SubmissionCounts[name] = clampCount(count)
	}
	return rows.Err()
}

// clampCount maps stored counts into 1..MaxSubmissionCount.
func clampCount(c sql.NullInt64) int {
	if !c.Valid || c.Int64 < 1 {
		return 1
	}
	if c.Int64 > MaxSubmissionCount {
		return MaxSubmissionCount
	}
	return int(c.Int64)
}
