package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/rs/xid"

	"github.com/publiclinks/service/internal/middleware"
	"github.com/publiclinks/service/internal/response"
	"github.com/publiclinks/service/internal/user"
)

const (
	stateCookie = "oauth_state"
	nextCookie  = "login_next"
)

// UserUpserter records a successful login; satisfied by *user.Service.
type UserUpserter interface {
	Upsert(ctx context.Context, id, email, name, picture string) (*user.User, error)
}

// Handler holds the HTTP handlers for the login flow and session endpoints.
type Handler struct {
	provider      Provider
	sessions      *Sessions
	users         UserUpserter
	allowedDomain string
}

// NewHandler creates an auth Handler. allowedDomain is the email domain
// suffix (without "@") accounts must belong to.
func NewHandler(provider Provider, sessions *Sessions, users UserUpserter, allowedDomain string) *Handler {
	return &Handler{
		provider:      provider,
		sessions:      sessions,
		users:         users,
		allowedDomain: allowedDomain,
	}
}

// Login godoc
//
//	@Summary		Start sign-in
//	@Description	Redirects the browser to the identity provider. An optional ?next= path is restored after login.
//	@Tags			auth
//	@Success		307
//	@Router			/auth/login [get]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// Remember where to send the user after the callback. Only same-site
	// paths are accepted so the cookie cannot become an open redirect.
	if next := r.URL.Query().Get("next"); strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		http.SetCookie(w, &http.Cookie{
			Name:     nextCookie,
			Value:    next,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback godoc
//
//	@Summary		Complete sign-in
//	@Description	Exchanges the provider code, enforces the allowed email domain, upserts the user, and sets the session cookie.
//	@Tags			auth
//	@Success		302
//	@Failure		400	{object}	response.Envelope
//	@Failure		403	{string}	string	"denial page naming the rejected email"
//	@Router			/auth/callback [get]
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		response.BadRequest(w, "invalid oauth state")
		return
	}
	clearCookie(w, stateCookie)

	code := r.URL.Query().Get("code")
	if code == "" {
		response.BadRequest(w, "missing oauth code")
		return
	}

	profile, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("auth: code exchange failed: %v", err)
		response.BadRequest(w, "authentication failed")
		return
	}

	// The one authorization rule: the account must belong to the allowed
	// domain. The denial names the rejected email so people signed into
	// the wrong Google account understand what happened.
	if !strings.HasSuffix(profile.Email, "@"+h.allowedDomain) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintf(w, deniedPage, h.allowedDomain, profile.Email)
		return
	}

	u, err := h.users.Upsert(r.Context(), profile.Subject, profile.Email, profile.Name, profile.Picture)
	if err != nil {
		log.Printf("auth: user upsert failed: %v", err)
		response.InternalError(w)
		return
	}

	token, err := h.sessions.Issue(u.ID)
	if err != nil {
		log.Printf("auth: session issue failed: %v", err)
		response.InternalError(w)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	dest := "/"
	if next, err := r.Cookie(nextCookie); err == nil && strings.HasPrefix(next.Value, "/") {
		dest = next.Value
		clearCookie(w, nextCookie)
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// Logout godoc
//
//	@Summary	Sign out
//	@Tags		auth
//	@Success	302
//	@Router		/auth/logout [get]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, SessionCookie)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Me godoc
//
//	@Summary	Current user
//	@Tags		auth
//	@Produce	json
//	@Success	200	{object}	response.Envelope{data=user.User}
//	@Failure	401	{object}	response.Envelope
//	@Router		/auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}
	response.OK(w, u)
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
}

const deniedPage = `<!DOCTYPE html>
<html>
<head><title>Access Denied</title></head>
<body style="font-family: monospace; padding: 40px; max-width: 600px; margin: 0 auto;">
    <h1>Access Denied</h1>
    <p>Only @%s accounts are allowed.</p>
    <p>You tried to sign in with: %s</p>
    <a href="/">Back to home</a>
</body>
</html>
`
