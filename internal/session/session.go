// Package session carries the authenticated identity of a request.
//
// Only the username is stored. Roles are looked up again by each operation so
// that a role change takes effect on the very next request.
package session

import (
	"context"
	"time"
)

type contextKey struct{}

// Session is the identity resolved from the request's access token.
type Session struct {
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	if !ok || s.Username == "" {
		return Session{}, false
	}
	return s, true
}
