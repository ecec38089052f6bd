package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"studypal/internal/auth"
	"studypal/internal/models"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "session_token"

// SignInPath is where the route guard sends visitors it turns away.
const SignInPath = "/auth/signin"

type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

type claimsKey struct{}

func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by RequireAuth or RouteGuard.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok && c != nil
}

type Authenticator struct {
	tokens TokenParser
	logger *zap.Logger
}

func NewAuthenticator(tokens TokenParser, logger *zap.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, logger: logger.Named("auth")}
}

// tokenFrom prefers the Authorization header and falls back to the session cookie.
func tokenFrom(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (a *Authenticator) claims(r *http.Request) (*auth.Claims, bool) {
	raw := tokenFrom(r)
	if raw == "" {
		return nil, false
	}
	c, err := a.tokens.Parse(raw)
	if err != nil {
		a.logger.Debug("rejected session token", zap.String("path", r.URL.Path), zap.Error(err))
		return nil, false
	}
	return c, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}

// RequireAuth rejects API requests without a valid token with a 401 JSON body.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := a.claims(r)
		if !ok {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), c)))
	})
}

// RequireRole answers 403 when the caller's role differs. It runs after RequireAuth.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFrom(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if c.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"error": "Forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GuardRule restricts every path under Prefix to one role.
type GuardRule struct {
	Prefix string
	Role   models.Role
}

var DefaultGuardRules = []GuardRule{
	{Prefix: "/quiz", Role: models.RoleTeacher},
	{Prefix: "/dashboard", Role: models.RoleStudent},
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// RouteGuard protects page routes. A request under a guarded prefix without a
// valid token, or with a token for another role, is redirected to the sign-in
// page. Paths outside every rule pass through untouched.
func (a *Authenticator) RouteGuard(rules []GuardRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var rule *GuardRule
			for i := range rules {
				if underPrefix(r.URL.Path, rules[i].Prefix) {
					rule = &rules[i]
					break
				}
			}
			if rule == nil {
				next.ServeHTTP(w, r)
				return
			}

			c, ok := a.claims(r)
			if !ok {
				target := SignInPath + "?callbackUrl=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			if c.Role != rule.Role {
				a.logger.Info("role not allowed on page",
					zap.String("path", r.URL.Path),
					zap.String("role", string(c.Role)),
					zap.String("required", string(rule.Role)),
				)
				http.Redirect(w, r, SignInPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), c)))
		})
	}
}
