package database

import (
	"strconv"
	"strings"
)

// BatchSize bounds the rows written by one multi-row statement.
const BatchSize = 100

// valuesList renders "($1, $2), ($3, $4)" for rows of cols placeholders.
// A non-empty cast for a column is appended to its placeholder, which lets
// Postgres type the columns of a VALUES list used in UPDATE ... FROM.
func valuesList(rows, cols int, casts ...string) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			if c < len(casts) && casts[c] != "" {
				b.WriteString("::")
				b.WriteString(casts[c])
			}
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
