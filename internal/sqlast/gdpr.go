package sqlast

import (
	"fmt"
	"strings"

	"k9db/internal/core"
)

// ParseGDPR parses a `GDPR GET <subject> <id>` or `GDPR FORGET <subject>
// <id>` statement. Neither is standard SQL, so rather than extend a
// third-party grammar this is a small hand-written lexer over whitespace-
// separated tokens — the same scope the original reserves for its own
// GDPR statement parsing (a dedicated, non-SQL entry point).
func ParseGDPR(stmt string) (*GDPR, error) {
	fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	if len(fields) != 4 || !strings.EqualFold(fields[0], "GDPR") {
		return nil, fmt.Errorf("sqlast: malformed GDPR statement %q", stmt)
	}
	var op GDPROp
	switch strings.ToUpper(fields[1]) {
	case "GET":
		op = GDPRGet
	case "FORGET":
		op = GDPRForget
	default:
		return nil, fmt.Errorf("sqlast: unknown GDPR operation %q", fields[1])
	}
	id, err := core.ParseLiteral(fields[3], core.TypeUint)
	if err != nil {
		id, err = core.ParseLiteral(fields[3], core.TypeText)
		if err != nil {
			return nil, fmt.Errorf("sqlast: invalid GDPR subject id %q: %w", fields[3], err)
		}
	}
	return &GDPR{Op: op, DataSubject: fields[2], ID: id}, nil
}

// IsGDPR reports whether stmt begins with the GDPR keyword, used by the
// session dispatcher to route before attempting a standard-SQL parse.
func IsGDPR(stmt string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "GDPR ")
}
