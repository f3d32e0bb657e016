package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// keyword is a case-folded pattern. Stems match any word beginning with
// text; other keywords must also end at a word boundary.
type keyword struct {
	text string
	stem bool
}

// fold applies Unicode case folding. A Caser is stateful, so each call
// builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

func compile(words []string) []keyword {
	out := make([]keyword, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		stem := strings.HasSuffix(w, "*")
		w = strings.TrimSuffix(w, "*")
		if w == "" {
			continue
		}
		out = append(out, keyword{text: fold(w), stem: stem})
	}
	return out
}

// matchAny reports whether folded text contains one of the keywords.
func matchAny(folded string, kws []keyword) bool {
	for _, k := range kws {
		if containsWord(folded, k) {
			return true
		}
	}
	return false
}

func containsWord(text string, k keyword) bool {
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], k.text)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(k.text)
		if wordStart(text, start) && (k.stem || wordEnd(text, end)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func wordStart(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func wordEnd(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
