package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// PlaceholderTranslationError reports a canonical query whose positional
// marker count differs from the number of supplied parameters.
type PlaceholderTranslationError struct {
	Query   string
	Markers int
	Params  int
}

func (e *PlaceholderTranslationError) Error() string {
	return fmt.Sprintf("placeholder mismatch: query has %d markers but %d parameters were supplied", e.Markers, e.Params)
}

// CountMarkers returns the number of positional ? markers outside quoted
// literals, quoted identifiers, and comments.
func CountMarkers(query string) int {
	n := 0
	scan(query, func(int) { n++ })
	return n
}

// Rebind rewrites a canonical query written with positional ? markers into
// the given placeholder style. Positional output is the input unchanged;
// numbered output replaces the n-th marker with $n. Parameters are never
// reordered, so the marker count must equal nParams.
func Rebind(style PlaceholderStyle, query string, nParams int) (string, error) {
	if style == Positional {
		if n := CountMarkers(query); n != nParams {
			return "", &PlaceholderTranslationError{Query: query, Markers: n, Params: nParams}
		}
		return query, nil
	}

	var sb strings.Builder
	sb.Grow(len(query) + nParams*2)
	last, n := 0, 0
	scan(query, func(pos int) {
		n++
		sb.WriteString(query[last:pos])
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
		last = pos + 1
	})
	sb.WriteString(query[last:])

	if n != nParams {
		return "", &PlaceholderTranslationError{Query: query, Markers: n, Params: nParams}
	}
	return sb.String(), nil
}

// scan walks query left to right and calls mark with the byte offset of
// every ? that is not inside '...', "...", a -- comment, or a /* */ comment.
// A doubled quote inside a quoted run is an escape and does not end it.
func scan(query string, mark func(pos int)) {
	for i := 0; i < len(query); i++ {
		switch c := query[i]; c {
		case '\'', '"':
			i++
			for i < len(query) {
				if query[i] == c {
					if i+1 < len(query) && query[i+1] == c {
						i += 2
						continue
					}
					break
				}
				i++
			}
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				for i < len(query) && query[i] != '\n' {
					i++
				}
			}
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				i += 2
				for i+1 < len(query) && !(query[i] == '*' && query[i+1] == '/') {
					i++
				}
				i++
			}
		case '?':
			mark(i)
		}
	}
}
