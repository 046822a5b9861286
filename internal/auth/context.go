package auth

import (
	"context"
)

type contextKey string

// ContextKeySession is the context key for the authenticated session
const ContextKeySession contextKey = "session"

// Session is the authenticated caller of a request
type Session struct {
	UserID string
	Email  string
}

// WithSession adds the session to the context
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, s)
}

// SessionFromContext retrieves the session from the context
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ContextKeySession).(*Session)
	return s, ok && s != nil
}
