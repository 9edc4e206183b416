package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// MaxTagLength bounds tag names accepted by CreateCustomTag.
const MaxTagLength = 40

// TagID derives the storage id for a tag name: lowercase, whitespace runs
// collapsed to single hyphens.
func TagID(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsSpace(r) {
			pendingDash = true
			continue
		}
		if pendingDash && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingDash = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// PredefinedTags is the seed catalog shown before the user creates any tags.
var PredefinedTags = []Tag{
	{Name: "Closed Guard", Category: TagPosition},
	{Name: "Open Guard", Category: TagPosition},
	{Name: "Half Guard", Category: TagPosition},
	{Name: "Butterfly Guard", Category: TagPosition},
	{Name: "De La Riva", Category: TagPosition},
	{Name: "Mount", Category: TagPosition},
	{Name: "Side Control", Category: TagPosition},
	{Name: "Back Control", Category: TagPosition},
	{Name: "North South", Category: TagPosition},
	{Name: "Knee on Belly", Category: TagPosition},
	{Name: "Turtle", Category: TagPosition},
	{Name: "Standing", Category: TagPosition},
	{Name: "Fundamental", Category: TagAttribute},
	{Name: "Advanced", Category: TagAttribute},
	{Name: "Competition", Category: TagAttribute},
	{Name: "Self Defense", Category: TagAttribute},
	{Name: "Drill", Category: TagAttribute},
	{Name: "Gi", Category: TagStyle},
	{Name: "No-Gi", Category: TagStyle},
	{Name: "Pressure", Category: TagStyle},
	{Name: "Leg Locks", Category: TagStyle},
}

const tagColumns = `id, name, category, usage_count, created_at, is_custom`

// ListTags returns every tag, most used first, then by name.
func (s *SQLiteStore) ListTags(ctx context.Context) ([]*Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTags(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY usage_count DESC, name ASC`)
}

// PopularTags returns up to limit tags that are in use.
func (s *SQLiteStore) PopularTags(ctx context.Context, limit int) ([]*Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTags(ctx, `
		SELECT `+tagColumns+` FROM tags
		WHERE usage_count > 0
		ORDER BY usage_count DESC, name ASC
		LIMIT ?
	`, limit)
}

// SearchTags returns up to limit tags whose name contains query, ignoring case.
func (s *SQLiteStore) SearchTags(ctx context.Context, query string, limit int) ([]*Tag, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Tag{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTags(ctx, `
		SELECT `+tagColumns+` FROM tags
		WHERE name LIKE ? ESCAPE '\'
		ORDER BY usage_count DESC, name ASC
		LIMIT ?
	`, "%"+escapeLike(query)+"%", limit)
}

// CreateCustomTag adds a user-defined tag. Creating an existing tag is not an
// error; the stored tag is returned.
func (s *SQLiteStore) CreateCustomTag(ctx context.Context, name string, category TagCategory) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTag)
	}
	if len([]rune(name)) > MaxTagLength {
		return nil, fmt.Errorf("%w: name longer than %d characters", ErrInvalidTag, MaxTagLength)
	}
	if category == "" {
		category = TagCustom
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidTag, category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := TagID(name)
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO tags (id, name, category, usage_count, created_at, is_custom)
		VALUES (?, ?, ?, 0, ?, 1)
	`, id, name, string(category), toMillis(s.now())); err != nil {
		return nil, err
	}

	tags, err := s.queryTags(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ? OR name = ? LIMIT 1`, id, name)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, ErrNotFound
	}
	return tags[0], nil
}

// SeedTags inserts predefined tags that are not present yet. Returns how many
// were added.
func (s *SQLiteStore) SeedTags(ctx context.Context, tags []Tag) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := toMillis(s.now())
		for _, t := range tags {
			name := strings.TrimSpace(t.Name)
			if name == "" || !t.Category.Valid() {
				continue
			}
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO tags (id, name, category, usage_count, created_at, is_custom)
				VALUES (?, ?, ?, 0, ?, 0)
			`, TagID(name), name, string(t.Category), now)
			if err != nil {
				return fmt.Errorf("seed tag %q: %w", name, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// CleanupOrphanedTags deletes custom tags with zero usage. Predefined tags are
// kept regardless of usage.
func (s *SQLiteStore) CleanupOrphanedTags(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cleanupOrphanedTags(ctx)
}

func (s *SQLiteStore) cleanupOrphanedTags(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE is_custom = 1 AND usage_count <= 0`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("removed orphaned tags", "count", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) queryTags(ctx context.Context, query string, args ...any) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []*Tag{}
	for rows.Next() {
		var t Tag
		var category string
		var createdAt int64
		var usage sql.NullInt64
		var isCustom int
		if err := rows.Scan(&t.ID, &t.Name, &category, &usage, &createdAt, &isCustom); err != nil {
			return nil, err
		}
		t.Category = TagCategory(category)
		t.CreatedAt = fromMillis(createdAt)
		t.IsCustom = isCustom != 0
		if usage.Valid && usage.Int64 > 0 {
			t.UsageCount = int(usage.Int64)
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
