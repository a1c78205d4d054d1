package formula

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var bracedRef = regexp.MustCompile(`\{([^{}]+)\}`)

// Normalize converts a user-facing name into an identifier that can be bound
// as an expression variable: runs of non-alphanumeric characters collapse to a
// single underscore and leading/trailing underscores are dropped.
//
//	Normalize("Unit Price")   // "Unit_Price"
//	Normalize(" Cost (USD) ") // "Cost_USD"
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// RewriteBraced replaces every {Name} placeholder with Normalize(Name).
func RewriteBraced(expression string) string {
	return bracedRef.ReplaceAllStringFunc(expression, func(m string) string {
		return Normalize(m[1 : len(m)-1])
	})
}

// RewriteBare replaces bare occurrences of the given raw names with their
// normalized identifiers. Longer names are rewritten first so that "Unit Price"
// is not clobbered by "Price", and an occurrence only matches when it is not
// part of a larger identifier.
func RewriteBare(expression string, names []string) string {
	ordered := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && Normalize(n) != n {
			ordered = append(ordered, n)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})

	for _, name := range ordered {
		expression = replaceWord(expression, name, Normalize(name))
	}
	return expression
}

// Collisions reports normalized identifiers produced by more than one distinct
// raw name. The raw names are listed in input order.
func Collisions(names []string) map[string][]string {
	byIdent := make(map[string][]string)
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		ident := Normalize(n)
		byIdent[ident] = append(byIdent[ident], n)
	}

	out := make(map[string][]string)
	for ident, raw := range byIdent {
		if len(raw) > 1 {
			out[ident] = raw
		}
	}
	return out
}

func replaceWord(s, word, repl string) string {
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(s[i:], word)
		if idx < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		start := i + idx
		end := start + len(word)
		if isBoundary(s, start-1) && isBoundary(s, end) {
			b.WriteString(s[i:start])
			b.WriteString(repl)
			i = end
			continue
		}
		b.WriteString(s[i : start+1])
		i = start + 1
	}
}

// isBoundary reports whether the byte at pos (if any) is not an identifier char.
func isBoundary(s string, pos int) bool {
	if pos < 0 || pos >= len(s) {
		return true
	}
	c := s[pos]
	return !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z')
}
