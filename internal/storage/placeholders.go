package storage

import (
	"fmt"
	"strings"
)

// valuesList returns "($1,$2),($3,$4)" style placeholders for a multi-row
// INSERT of rows rows with cols columns each.
func valuesList(rows, cols int) string {
	var b strings.Builder
	for i := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for j := range cols {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", i*cols+j+1)
		}
		b.WriteByte(')')
	}
	return b.String()
}
