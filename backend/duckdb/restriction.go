package duckdb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeRestriction is returned by ReadRows for a row restriction that
// could run more than a predicate over the target table.
var ErrUnsafeRestriction = errors.New("unsafe row restriction")

// forbiddenWords may not appear outside quotes in a row restriction. The
// filter compiler never emits them.
var forbiddenWords = map[string]bool{
	"SELECT": true,
	"FROM":   true,
	"WITH":   true,
	"UNION":  true,
	"PIVOT":  true,
}

// checkRestriction scans a row restriction the way DuckDB tokenizes
// quoted text and rejects statement separators, comments, subqueries
// and literal forms it cannot follow (prefixed and dollar-quoted strings).
func checkRestriction(s string) error {
	reject := func(pos int, what string) error {
		return fmt.Errorf("%w: %s at offset %d", ErrUnsafeRestriction, what, pos)
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(s, i)
			if end < 0 {
				return reject(i, "unterminated quote")
			}
			i = end + 1
		case c == ';':
			return reject(i, "statement separator")
		case c == '$':
			return reject(i, "dollar quote or parameter")
		case c == '-' && i+1 < len(s) && s[i+1] == '-',
			c == '/' && i+1 < len(s) && s[i+1] == '*':
			return reject(i, "comment")
		case isWordStart(c):
			start := i
			for i < len(s) && isWordPart(s[i]) {
				i++
			}
			word := strings.ToUpper(s[start:i])
			if forbiddenWords[word] {
				return reject(start, word)
			}
			if i < len(s) && (s[i] == '\'' || s[i] == '"') {
				return reject(start, "prefixed literal")
			}
		default:
			i++
		}
	}
	return nil
}

// closingQuote returns the index of the quote ending the quoted run that
// starts at open. A doubled quote is part of the run.
func closingQuote(s string, open int) int {
	q := s[open]
	for i := open + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return -1
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
