package recognize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

// MinKeywordLetters is the shortest token considered a keyword.
const MinKeywordLetters = 3

// Keyword is a candidate tag drawn from notes.
type Keyword struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// KeywordExtractor counts content words, skipping English stopwords and an
// ignore list.
type KeywordExtractor struct {
	stop   *stopwords.Stopwords
	ignore map[string]bool
}

// NewKeywordExtractor creates an extractor with the English stopword list.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{
		stop:   stopwords.MustGet("en"),
		ignore: make(map[string]bool),
	}
}

// Ignore excludes words from future extraction, such as existing tag names.
// Multi-word names ignore each of their words.
func (k *KeywordExtractor) Ignore(words ...string) {
	for _, w := range words {
		for _, tok := range tokens(w) {
			k.ignore[tok] = true
		}
	}
}

// Extract returns up to limit keywords from text, most frequent first, ties
// in order of first appearance. Text covered by skip is not considered.
func (k *KeywordExtractor) Extract(text string, skip []Match, limit int) []Keyword {
	if limit <= 0 {
		return []Keyword{}
	}
	text = blank(text, skip)

	counts := make(map[string]int)
	var order []string
	for _, tok := range tokens(text) {
		if letterCount(tok) < MinKeywordLetters || k.ignore[tok] || k.stop.Contains(tok) {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	out := make([]Keyword, 0, len(order))
	for _, w := range order {
		out = append(out, Keyword{Word: w, Count: counts[w]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tokens splits canonicalized text into words with surrounding joiners
// trimmed.
func tokens(s string) []string {
	fields := strings.Fields(Canonicalize(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'-/")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// blank replaces the matched spans of text with spaces.
func blank(text string, spans []Match) string {
	if len(spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, m := range spans {
		if m.Start < 0 || m.End > len(b) || m.Start >= m.End {
			continue
		}
		for i := m.Start; i < m.End; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}
