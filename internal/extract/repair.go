package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Pass is one pure text repair.
type Pass struct {
	Name  string
	Apply func(string) string
}

// Passes run in this order; each sees the output of the previous one.
var Passes = []Pass{
	{Name: "trailing_commas", Apply: RemoveTrailingCommas},
	{Name: "control_chars", Apply: EscapeControlChars},
	{Name: "balance_brackets", Apply: BalanceBrackets},
}

// Repair applies every pass cumulatively and stops early once the text is
// valid JSON. It returns the names of the passes that changed the text.
func Repair(s string) (string, []string) {
	applied := []string{}
	for _, p := range Passes {
		if json.Valid([]byte(s)) {
			break
		}
		next := p.Apply(s)
		if next != s {
			applied = append(applied, p.Name)
		}
		s = next
	}
	return s, applied
}

// RemoveTrailingCommas drops commas that directly precede a closing bracket,
// outside string literals.
func RemoveTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// EscapeControlChars escapes raw control characters inside string literals.
func EscapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type cutPoint struct {
	at    int
	stack []byte
}

// BalanceBrackets closes a truncated document: an open string is closed and
// open containers are closed in reverse order. If that still is not valid
// JSON the text is cut back to the last structurally safe point first.
func BalanceBrackets(s string) string {
	stack := []byte{}
	cuts := []cutPoint{}
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
			cuts = append(cuts, cutPoint{at: i + 1, stack: append([]byte(nil), stack...)})
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ',':
			cuts = append(cuts, cutPoint{at: i, stack: append([]byte(nil), stack...)})
		}
	}
	if len(stack) == 0 && !inString {
		return s
	}

	tail := s
	if inString {
		tail = strings.TrimSuffix(tail, `\`) + `"`
	}
	closed := tail + closers(stack)
	if json.Valid([]byte(closed)) {
		return closed
	}
	for i := len(cuts) - 1; i >= 0; i-- {
		head := strings.TrimRightFunc(s[:cuts[i].at], unicode.IsSpace)
		head = strings.TrimSuffix(head, ",")
		candidate := head + closers(cuts[i].stack)
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return closed
}

func closers(stack []byte) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
