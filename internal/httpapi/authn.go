package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/obs"
)

const (
	authHeader       = "Authorization"
	bearer           = "Bearer "
	accessCookie     = "accessToken"
	devAuthHeader    = "X-Dev-Auth-User"
	devPrincipalID   = "000000000000000000000001"
	devPrincipalMail = "dev@localhost"
)

// protect authenticates the request and attaches the principal. Tokens come from the
// Authorization header first and the accessToken cookie second.
func (a *API) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.DevBypassEnabled() && r.Header.Get(devAuthHeader) != "" {
			principal := auth.Principal{User: a.devUser(), Synthetic: true}
			obs.FromContext(r.Context()).Warn("development auth bypass used")
			next.ServeHTTP(w, r.WithContext(a.withPrincipal(r, principal)))
			return
		}

		token := tokenFromRequest(r)
		user, claims, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		principal := auth.Principal{User: user, Claims: claims}
		next.ServeHTTP(w, r.WithContext(a.withPrincipal(r, principal)))
	})
}

func (a *API) withPrincipal(r *http.Request, p auth.Principal) context.Context {
	ctx := auth.ContextWithPrincipal(r.Context(), p)
	ctx = obs.WithUserID(ctx, p.User.ID)
	ctx = withAuthorizer(ctx, a, p)
	setRequestUser(ctx, p.User.ID)
	return ctx
}

func (a *API) devUser() *auth.User {
	role := auth.Role(a.cfg.Dev.AuthRole)
	if !role.Valid() {
		role = auth.RoleUser
	}
	return &auth.User{
		ID:            devPrincipalID,
		Name:          "Development User",
		Email:         devPrincipalMail,
		Role:          role,
		EmailVerified: true,
		Active:        true,
		Settings:      auth.DefaultSettings(),
	}
}

// guard wraps h with the given middlewares (outermost first) behind protect.
func (a *API) guard(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return a.protect(out)
}

func tokenFromRequest(r *http.Request) string {
	if token := extractBearerToken(r.Header.Get(authHeader)); token != "" {
		return token
	}
	if c, err := r.Cookie(accessCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

// setAccessCookie is a no-op outside production.
func (a *API) setAccessCookie(w http.ResponseWriter, token auth.IssuedToken) {
	if !a.cfg.IsProduction() {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    token.Value,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearAccessCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}
