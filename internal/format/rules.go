package format

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule-based formatters. They are deterministic and never fail, so they are
// the fallback for every LLM error.

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)

var fillerRe = regexp.MustCompile(`(?i)\b(um|uh|like|you know|basically|actually|literally)\b,?\s*`)

// Rules formats text for category without any network access.
func Rules(text string, c Category) string {
	switch c {
	case Casual:
		return casual(text)
	case Formal:
		return formal(text)
	case Code:
		return strings.TrimSpace(text)
	default:
		return sentences(text)
	}
}

// casual lowercases and drops one trailing period; ? and ! stay.
func casual(text string) string {
	out := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimSuffix(out, ".")
}

func formal(text string) string {
	cleaned := fillerRe.ReplaceAllString(text, "")
	return sentences(cleaned)
}

// sentences capitalises each sentence and ensures terminal punctuation.
func sentences(text string) string {
	var parts []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" || strings.IndexFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			continue
		}
		s = capitalise(s)
		if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "?") && !strings.HasSuffix(s, "!") {
			s += "."
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func capitalise(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
