package embedder

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// BasicTokens applies BERT's basic tokenization: drop control characters,
// isolate CJK ideographs, lowercase, strip accents, then split on whitespace and
// punctuation. Both encoders share it so they see the same word boundaries.
func BasicTokens(text string) []string {
	text = cleanText(text)
	text = spaceCJK(text)
	text = strings.ToLower(text)
	text = stripAccents(text)

	var tokens []string
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, splitOnPunctuation(word)...)
	}
	return tokens
}

func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == 0 || r == 0xFFFD || isControl(r):
		case isWhitespace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents drops combining marks after NFD decomposition ("eléctrico" -> "electrico").
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if !unicode.In(r, unicode.Mn) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func spaceCJK(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if isCJK(r) {
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitOnPunctuation keeps each punctuation rune as its own token.
func splitOnPunctuation(word string) []string {
	var tokens []string
	start := -1
	for i, r := range word {
		if !isPunctuation(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, word[start:i])
			start = -1
		}
		tokens = append(tokens, string(r))
	}
	if start >= 0 {
		tokens = append(tokens, word[start:])
	}
	return tokens
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return unicode.IsControl(r)
}

// isPunctuation matches BERT: every non-alphanumeric printable ASCII rune counts,
// plus the Unicode punctuation categories.
func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

var cjkRanges = [][2]rune{
	{0x4E00, 0x9FFF}, {0x3400, 0x4DBF}, {0x20000, 0x2A6DF}, {0x2A700, 0x2B73F},
	{0x2B740, 0x2B81F}, {0x2B820, 0x2CEAF}, {0xF900, 0xFAFF}, {0x2F800, 0x2FA1F},
}

func isCJK(r rune) bool {
	for _, rg := range cjkRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}
