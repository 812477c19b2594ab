package sqlast

import "strings"

// ParseExplain strips a leading EXPLAIN keyword and returns the inner
// statement text for the rewriter to parse and describe without
// executing, per spec.md's EXPLAIN operation.
func ParseExplain(stmt string) *Explain {
	trimmed := strings.TrimSpace(stmt)
	inner := strings.TrimSpace(trimmed[len("EXPLAIN"):])
	return &Explain{Inner: inner}
}

// IsExplain reports whether stmt begins with the EXPLAIN keyword.
func IsExplain(stmt string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "EXPLAIN")
}
