// Package access holds the single authorization predicate of the service:
// whether an identity is the administrator.  Every admin-only path asks
// the same Gate, built once from configuration.
package access

import "strings"

// Identity is the authenticated caller as carried by the session token.
type Identity struct {
	UserID uint64
	Email  string
}

// Gate answers admin checks against a fixed set of administrator emails.
type Gate struct {
	admins map[string]struct{}
}

// NewGate builds a Gate.  Emails are compared case-insensitively.
func NewGate(adminEmails ...string) *Gate {
	g := &Gate{admins: make(map[string]struct{}, len(adminEmails))}
	for _, e := range adminEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			g.admins[e] = struct{}{}
		}
	}
	return g
}

// IsAdmin reports whether id belongs to the administrator.  A nil Gate or
// an identity without an email is never admin.
func (g *Gate) IsAdmin(id Identity) bool {
	if g == nil || id.Email == "" {
		return false
	}
	_, ok := g.admins[strings.ToLower(strings.TrimSpace(id.Email))]
	return ok
}

// Role names the caller's role for responses and logs.
func (g *Gate) Role(id Identity) string {
	if g.IsAdmin(id) {
		return "admin"
	}
	return "user"
}
