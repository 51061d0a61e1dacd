// Package match scores GC filter candidates against source records and
// decides which candidate, if any, is the record being checked.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLen drops tokens shorter than this after normalization.
const MinTokenLen = 2

// stopWords are legal-form and generic business words that carry no
// identity signal in Indonesian establishment names.
var stopWords = map[string]struct{}{
	"pt":     {},
	"cv":     {},
	"ud":     {},
	"pd":     {},
	"pb":     {},
	"toko":   {},
	"warung": {},
	"usaha":  {},
	"dagang": {},
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s, strips diacritics and punctuation, and
// collapses runs of whitespace to single spaces.
func Normalize(s string) string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens normalizes s and returns its distinct significant tokens. Short
// tokens and stop words are dropped; order is not preserved.
func Tokens(s string) map[string]struct{} {
	return tokenize(s, MinTokenLen, stopWords)
}

func tokenize(s string, minLen int, stop map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(Normalize(s)) {
		if len(tok) < minLen {
			continue
		}
		if _, skip := stop[tok]; skip {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}
