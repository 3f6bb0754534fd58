package schema

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	return headers
}

// NormalizeName folds header text into a lowercase ASCII identifier usable
// as a SQL column or metric label. Accents are folded away; camelCase
// boundaries and runs of anything outside [A-Za-z0-9] become one underscore.
// A header with no usable characters becomes "col".
func NormalizeName(s string) string {
	folded, _, err := transform.String(foldAccents(), s)
	if err != nil {
		folded = s
	}
	words := splitWords(folded)
	if len(words) == 0 {
		return "col"
	}
	return strings.Join(words, "_")
}

// NormalizeNames normalizes every header. Repeats get _2, _3, ... suffixes
// that skip any name another header produces on its own, so every column
// keeps a distinct identifier and the first header keeps the plain one.
func NormalizeNames(headers []string) []string {
	out := make([]string, len(headers))
	natural := make(map[string]bool, len(headers))
	for i, h := range headers {
		out[i] = NormalizeName(h)
		natural[out[i]] = true
	}
	used := make(map[string]bool, len(headers))
	for i, base := range out {
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
			if natural[name] {
				name = base
			}
		}
		out[i] = name
		used[name] = true
	}
	return out
}

// foldAccents decomposes, drops combining marks and recomposes. Chains hold
// state, so each call builds its own.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// splitWords lowercases s into words, breaking at every character outside
// [A-Za-z0-9] and before an upper-case letter that follows a lower-case
// letter or digit.
func splitWords(s string) []string {
	var (
		words []string
		cur   []byte
		prev  rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
				flush()
			}
			cur = append(cur, byte(r-'A'+'a'))
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			cur = append(cur, byte(r))
		default:
			flush()
		}
		prev = r
	}
	flush()
	return words
}
