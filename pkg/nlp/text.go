package nlp

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenizeWords lowercases text and splits it into word tokens.
// Apostrophes and hyphens inside a word survive, so "didn't" and
// "al-shabaab" stay whole.
func tokenizeWords(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '’' && r != '-'
	})
	out := raw[:0]
	for _, w := range raw {
		w = strings.Trim(w, "'-’")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// splitSentences breaks text on terminal punctuation and newlines.
// Abbreviation dots over-split; the extractor tolerates that.
func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', ';', ':', '\n':
			return true
		}
		return false
	})
}

// capBytes truncates s to at most max bytes without splitting a rune.
func capBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
