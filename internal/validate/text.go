package validate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// clean normalizes to NFC and collapses runs of whitespace inside a line.
func clean(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// cleanBlock is clean for multi-paragraph text; blank lines survive.
func cleanBlock(s string) string {
	s = norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))
	paras := []string{}
	for _, p := range paraSplitRe.Split(s, -1) {
		if p = clean(p); p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n")
}

// stripPrefix removes prefix from the start of s, ignoring case.
func stripPrefix(s, prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		return s
	}
	t := strings.TrimSpace(s)
	if len(t) >= len(p) && strings.EqualFold(t[:len(p)], p) {
		return strings.TrimSpace(t[len(p):])
	}
	return t
}

var (
	titleLabelRe  = regexp.MustCompile(`(?i)^(?:#+\s*)?\**\s*(?:title|product title|titel|titre|título|titolo|标题)\s*\**\s*[:：]\s*`)
	bulletMarkRe  = regexp.MustCompile(`^\s*(?:[-*•·–]\s*|\d+[.)]\s+)`)
	sentenceEndRe = regexp.MustCompile(`[.!?。！？]`)
	paraSplitRe   = regexp.MustCompile(`\n\s*\n`)
)

func unquoteEdges(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, "'", "“", "”", "„", "«", "»"} {
		s = strings.TrimPrefix(s, q)
		s = strings.TrimSuffix(s, q)
	}
	return strings.TrimSpace(s)
}

// truncateWords cuts s to at most max runes, preferring the last word
// boundary in the second half of the cut.
func truncateWords(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := r[:max]
	if max < len(r) && unicode.IsSpace(r[max]) {
		return trimTail(string(cut))
	}
	for i := len(cut) - 1; i > len(cut)/2; i-- {
		if unicode.IsSpace(cut[i]) {
			return trimTail(string(cut[:i]))
		}
	}
	return trimTail(string(cut))
}

// truncateSentences cuts s to at most max runes at a sentence end when one
// exists at or after min runes, otherwise at a word boundary.
func truncateSentences(s string, min, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	head := string(r[:max])
	locs := sentenceEndRe.FindAllStringIndex(head, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(head[:locs[i][1]])
		if runeLen(candidate) >= min {
			return candidate
		}
	}
	return truncateWords(s, max)
}

func trimTail(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",;:-|/–", r)
	})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// phrase joins parts with spaces, skipping empty parts and repeated words.
func phrase(parts ...string) string {
	words := []string{}
	for _, p := range parts {
		for _, w := range strings.Fields(p) {
			if len(words) > 0 && strings.EqualFold(words[len(words)-1], w) {
				continue
			}
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-' && r != '\''
	})
}

var englishMarkers = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "of": {}, "a": {}, "in": {}, "on": {}, "for": {}, "showing": {}, "photo": {},
	"shot": {}, "image": {}, "product": {}, "background": {},
}

// looksEnglish is a cheap check used for image briefs: plain ASCII letters
// and, for longer text, at least one common English word.
func looksEnglish(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && r > unicode.MaxASCII {
			return false
		}
	}
	ws := words(s)
	if len(ws) < 4 {
		return len(ws) > 0
	}
	for _, w := range ws {
		if _, ok := englishMarkers[w]; ok {
			return true
		}
	}
	return false
}
