// Package auth verifies session tokens issued by the identity provider.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie that carries the access token for browser clients
const SessionCookie = "sb-access-token"

var (
	// ErrNotConfigured is returned when no signing secret is set
	ErrNotConfigured = errors.New("session verification is not configured")
	// ErrMissingToken is returned when the request carries no token
	ErrMissingToken = errors.New("missing session token")
)

// Claims are the session token claims the API relies on
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 session tokens
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewVerifier creates a verifier for tokens signed with secret. An empty
// secret yields a verifier that rejects everything with ErrNotConfigured.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		leeway:   30 * time.Second,
	}
}

// IsConfigured returns true if a signing secret is set
func (v *Verifier) IsConfigured() bool {
	return len(v.secret) > 0
}

// ValidateToken parses and verifies a token and returns its session
func (v *Verifier) ValidateToken(tokenString string) (*Session, error) {
	if !v.IsConfigured() {
		return nil, ErrNotConfigured
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return &Session{UserID: claims.Subject, Email: claims.Email}, nil
}

// VerifyRequest validates the bearer token or session cookie of r
func (v *Verifier) VerifyRequest(r *http.Request) (*Session, error) {
	if !v.IsConfigured() {
		return nil, ErrNotConfigured
	}
	token := TokenFromRequest(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	return v.ValidateToken(token)
}

// TokenFromRequest extracts the access token from the Authorization
// header, falling back to the session cookie
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Sign issues a token for userID; used by tooling and tests
func (v *Verifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	if !v.IsConfigured() {
		return "", ErrNotConfigured
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
