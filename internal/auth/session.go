// Package auth implements the access gate: Google sign-in, the session
// cookie that carries the resulting identity, and the HTTP handlers for the
// login flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/publiclinks/service/internal/user"
)

// SessionCookie is the name of the HttpOnly cookie holding the session token.
const SessionCookie = "session"

// sessionTTL is how long a login stays valid before the user must sign in again.
const sessionTTL = 7 * 24 * time.Hour

// Sessions issues and validates the signed session tokens stored in the
// session cookie. Tokens are stateless HS256 JWTs carrying only the user's
// subject id; nothing is persisted server-side.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions creates a Sessions signer/verifier with the given secret.
func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: sessionTTL}
}

// Issue signs a new session token for the given user id.
func (s *Sessions) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		Issuer:    "publiclinks",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token, returning the user id it was
// issued for.
func (s *Sessions) Validate(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid or expired session")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid session claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("session has no subject")
	}
	return sub, nil
}

// UserSource loads users by id; satisfied by *user.Service.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Resolver turns an inbound request into a known User by reading the session
// cookie, validating the token, and loading the account. It is the single
// "who is calling" capability the rest of the service depends on.
type Resolver struct {
	sessions *Sessions
	users    UserSource
}

// NewResolver creates a Resolver over the given session verifier and user source.
func NewResolver(sessions *Sessions, users UserSource) *Resolver {
	return &Resolver{sessions: sessions, users: users}
}

// ResolveUser returns the authenticated caller, or an error when the request
// carries no valid session.
func (r *Resolver) ResolveUser(req *http.Request) (*user.User, error) {
	cookie, err := req.Cookie(SessionCookie)
	if err != nil {
		return nil, errors.New("no session cookie")
	}
	userID, err := r.sessions.Validate(cookie.Value)
	if err != nil {
		return nil, err
	}
	return r.users.GetByID(req.Context(), userID)
}
