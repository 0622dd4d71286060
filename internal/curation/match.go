package curation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Mode combines the words of a filter.
type Mode int

const (
	// MatchAny keeps rows containing at least one word.
	MatchAny Mode = iota
	// MatchAll keeps rows containing every word.
	MatchAll
)

func (m Mode) String() string {
	if m == MatchAll {
		return "AND"
	}
	return "OR"
}

// ParseMode accepts "or"/"any" and "and"/"all", case-insensitively.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "or", "any":
		return MatchAny, true
	case "and", "all":
		return MatchAll, true
	}
	return MatchAny, false
}

// matcher tests one cell against a fixed word list.
type matcher struct {
	mode   Mode
	exact  bool
	fold   func(string) string
	words  []string   // folded, for substring search
	tokens [][]string // folded, for whole-word search
}

func newMatcher(words []string, mode Mode, caseSensitive, exact bool) *matcher {
	m := &matcher{mode: mode, exact: exact, fold: func(s string) string { return s }}
	if !caseSensitive {
		c := cases.Fold()
		m.fold = c.String
	}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		fw := m.fold(w)
		m.words = append(m.words, fw)
		m.tokens = append(m.tokens, tokenize(fw))
	}
	return m
}

func (m *matcher) empty() bool { return len(m.words) == 0 }

func (m *matcher) match(cell string) bool {
	if m.empty() {
		return false
	}
	cell = m.fold(cell)
	var cellTokens []string
	if m.exact {
		cellTokens = tokenize(cell)
	}
	for i, w := range m.words {
		var hit bool
		if m.exact {
			hit = containsSeq(cellTokens, m.tokens[i])
		} else {
			hit = strings.Contains(cell, w)
		}
		if hit && m.mode == MatchAny {
			return true
		}
		if !hit && m.mode == MatchAll {
			return false
		}
	}
	return m.mode == MatchAll
}

// tokenize splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsSeq reports whether seq occurs contiguously in tokens.
func containsSeq(tokens, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j := range seq {
			if tokens[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
