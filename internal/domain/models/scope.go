package models

import "strings"

// AnonymousScope is used when no signed-in user is available.
const AnonymousScope Scope = "anonymous"

// Scope namespaces cache entries, ledgers and backups per user.
type Scope string

// NewScope normalises a raw identity into a scope safe for keys and path segments.
func NewScope(raw string) Scope {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AnonymousScope
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return AnonymousScope
	}
	return Scope(out)
}

func (s Scope) String() string {
	return string(s)
}
