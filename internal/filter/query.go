package filter

import (
	"fmt"
	"strings"
)

// ValidateQuery checks that a raw Overpass filter snippet is safe to
// interpolate into a history query: brackets balanced, quotes closed, no
// statement separators that would escape the enclosing query. The snippet
// semantics remain Overpass's business.
func ValidateQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}

	var depth int

	var quote rune

	for _, r := range q {
		if quote != 0 {
			if r == quote {
				quote = 0
			}

			continue
		}

		switch r {
		case '"', '\'':
			quote = r
		case '[', '(':
			depth++
		case ']', ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced brackets in query filter %q", q)
			}
		case ';':
			return fmt.Errorf("query filter must be a single expression, got %q", q)
		}
	}

	if depth != 0 {
		return fmt.Errorf("unbalanced brackets in query filter %q", q)
	}

	if quote != 0 {
		return fmt.Errorf("unterminated quote in query filter %q", q)
	}

	return nil
}
