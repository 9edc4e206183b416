// Package recognize finds known technique names and candidate keywords in
// free-text training notes.
package recognize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// isJoiner reports punctuation kept inside technique names such as
// "X-Guard", "O'Connor" or "50/50".
func isJoiner(r rune) bool {
	switch r {
	case '\'', '-', '/':
		return true
	}
	return false
}

// fold lowercases r and maps typographic variants to their ASCII form.
// Returns false when r separates tokens.
func fold(r rune) (rune, bool) {
	c := unicode.ToLower(r)
	switch c {
	case '\u2019', '\u2018':
		c = '\''
	case '\u2013', '\u2014', '\u2010', '\u2011':
		c = '-'
	}
	if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
		return c, true
	}
	return c, false
}

// Canonicalize lowercases s, keeps letters, digits and joiners, and collapses
// every other run of characters into a single space. Patterns and scanned
// text go through the same function.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c, keep := fold(ch)
		if keep {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteByte(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimSuffix(out.String(), " ")
}

// offsetMap maps each byte of Canonicalize(original) to the byte offset in
// original it came from. The final entry is len(original).
func offsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)

	lastWasSpace := true
	for origPos, ch := range original {
		c, keep := fold(ch)
		if keep {
			for range utf8.RuneLen(c) {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			mapping = append(mapping, origPos)
			lastWasSpace = true
		}
	}
	return append(mapping, len(original))
}

func mapOffset(canon int, mapping []int, originalLen int) int {
	if canon < 0 {
		return 0
	}
	if canon >= len(mapping) {
		return originalLen
	}
	return mapping[canon]
}
