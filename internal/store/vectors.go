package store

import (
	"context"
	"database/sql"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// vectorDims is the width of the hashed technique feature vectors.
const vectorDims = 64

const (
	weightTag      = 1.0
	weightNameWord = 0.75
	weightCategory = 0.5
)

// techniqueFeatures hashes category, tags and name words into a unit vector.
// Techniques sharing tags and vocabulary end up close in cosine distance.
func techniqueFeatures(name string, category Category, tags []string) []float32 {
	vec := make([]float32, vectorDims)
	add := func(feature string, weight float32) {
		h := fnv.New32a()
		h.Write([]byte(feature))
		vec[h.Sum32()%vectorDims] += weight
	}

	add("c:"+strings.ToLower(string(category)), weightCategory)
	for _, tag := range tags {
		add("t:"+TagID(tag), weightTag)
	}
	for _, word := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		add("n:"+word, weightNameWord)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// vectorJSON renders v in the JSON form accepted by vec_f32.
func vectorJSON(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 8)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func writeVector(ctx context.Context, tx *sql.Tx, techniqueID string, vec []float32) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO technique_vectors (technique_id, embedding) VALUES (?, vec_f32(?))
		ON CONFLICT(technique_id) DO UPDATE SET embedding = excluded.embedding
	`, techniqueID, vectorJSON(vec))
	return err
}

// RelatedTechniques returns up to limit other techniques ordered by cosine
// distance to the given technique's feature vector.
func (s *SQLiteStore) RelatedTechniques(ctx context.Context, id string, limit int) ([]*Technique, error) {
	if limit <= 0 {
		return []*Technique{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM technique_vectors WHERE technique_id = ?)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	return s.queryTechniques(ctx, `
		SELECT t.id, t.name, t.category, t.notes, t.links, t.timestamp, t.session_id
		FROM technique_vectors v
		JOIN techniques t ON t.id = v.technique_id
		WHERE v.technique_id != ?
		ORDER BY vec_distance_cosine(v.embedding, (SELECT embedding FROM technique_vectors WHERE technique_id = ?)) ASC,
			t.timestamp DESC
		LIMIT ?
	`, id, id, limit)
}
