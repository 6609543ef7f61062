package schema

import (
	"path/filepath"
	"strings"
)

// NormalizeIdentifier lowercases s and replaces every character outside
// [A-Za-z0-9] with '_'. The result only contains [a-z0-9_], so applying it
// twice is the same as applying it once.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NormalizeTableName strips the file extension and normalizes the rest.
// "Leads Q3.csv" becomes "leads_q3".
func NormalizeTableName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return NormalizeIdentifier(base)
}
