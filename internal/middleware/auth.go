package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/publiclinks/service/internal/response"
	"github.com/publiclinks/service/internal/user"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const userKey contextKey = "user"

// UserResolver resolves the calling user from a request, typically by
// validating a session cookie and loading the account.
type UserResolver interface {
	ResolveUser(r *http.Request) (*user.User, error)
}

// RequireUser returns middleware that rejects unauthenticated API calls with
// a 401 and injects the resolved user into the request context otherwise.
func RequireUser(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := resolver.ResolveUser(r)
			if err != nil {
				response.Unauthorized(w, "not authenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireUserOrLogin is RequireUser for direct resource fetches: instead of a
// 401 it redirects the browser to the login flow, preserving the requested
// path as the post-login destination.
func RequireUserOrLogin(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := resolver.ResolveUser(r)
			if err != nil {
				http.Redirect(w, r, "/auth/login?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext retrieves the authenticated user set by RequireUser.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userKey).(*user.User)
	return u, ok && u != nil
}
