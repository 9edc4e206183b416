package recognize

import (
	"sort"

	"github.com/coregx/ahocorasick"
)

// Entry is a named item to recognize.
type Entry struct {
	ID   string
	Name string
}

// Match is a recognized name in scanned text.
type Match struct {
	Start int      `json:"start"` // byte offset in the original text
	End   int      `json:"end"`   // exclusive
	Text  string   `json:"text"`  // original slice, casing preserved
	Name  string   `json:"name"`  // canonical pattern
	IDs   []string `json:"ids"`   // entries sharing the pattern
}

// Dictionary is an Aho-Corasick automaton over canonicalized entry names.
type Dictionary struct {
	ac           *ahocorasick.Automaton
	patterns     []string
	patternIndex map[string]int
	patternToIDs [][]string
}

// Compile builds a dictionary from entries. Entries whose names canonicalize
// to the same pattern share it.
func Compile(entries []Entry) (*Dictionary, error) {
	d := &Dictionary{patternIndex: make(map[string]int)}

	for _, e := range entries {
		key := Canonicalize(e.Name)
		if key == "" {
			continue
		}
		if idx, ok := d.patternIndex[key]; ok {
			d.patternToIDs[idx] = appendUnique(d.patternToIDs[idx], e.ID)
			continue
		}
		d.patternIndex[key] = len(d.patterns)
		d.patterns = append(d.patterns, key)
		d.patternToIDs = append(d.patternToIDs, []string{e.ID})
	}

	if len(d.patterns) == 0 {
		return d, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = automaton
	return d, nil
}

// Len returns the number of distinct patterns.
func (d *Dictionary) Len() int {
	return len(d.patterns)
}

// Lookup returns the entry ids whose name canonicalizes like surface.
func (d *Dictionary) Lookup(surface string) []string {
	idx, ok := d.patternIndex[Canonicalize(surface)]
	if !ok {
		return nil
	}
	return d.patternToIDs[idx]
}

// Scan returns non-overlapping, word-bounded matches in text. Where matches
// overlap the leftmost one wins, then the longest.
func (d *Dictionary) Scan(text string) []Match {
	if d.ac == nil {
		return nil
	}

	haystack := []byte(Canonicalize(text))
	mapping := offsetMap(text)

	type span struct{ start, end, pattern int }
	var spans []span
	for _, m := range d.ac.FindAllOverlapping(haystack) {
		if !wordBounded(haystack, m.Start, m.End) {
			continue
		}
		spans = append(spans, span{m.Start, m.End, m.PatternID})
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	result := make([]Match, 0, len(spans))
	last := -1
	for _, s := range spans {
		if s.start < last {
			continue
		}
		last = s.end

		origStart := mapOffset(s.start, mapping, len(text))
		origEnd := mapOffset(s.end, mapping, len(text))
		if origStart >= origEnd || origEnd > len(text) {
			continue
		}
		result = append(result, Match{
			Start: origStart,
			End:   origEnd,
			Text:  text[origStart:origEnd],
			Name:  d.patterns[s.pattern],
			IDs:   d.patternToIDs[s.pattern],
		})
	}
	return result
}

// wordBounded reports whether haystack[start:end] begins and ends at token
// edges of canonicalized text.
func wordBounded(haystack []byte, start, end int) bool {
	if start > 0 && haystack[start-1] != ' ' {
		return false
	}
	if end < len(haystack) && haystack[end] != ' ' {
		return false
	}
	return true
}

func appendUnique(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}
