package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/landmarktitle/tessa/internal/policy"
)

// CookieName is the session cookie carrying the signed token.
const CookieName = "auth-token"

type contextKey struct{}

var actorKey contextKey

// TokenFromRequest extracts the session token from the auth cookie or,
// failing that, a bearer Authorization header. Returns "" when absent.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// Middleware authenticates every request: the token is parsed and the
// account re-read from the database, so revoked users and role changes
// take effect immediately. Unauthenticated requests get a 401.
func Middleware(manager *Manager, store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				http.Error(w, "not authenticated", http.StatusUnauthorized)
				return
			}

			claims, err := manager.Parse(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			user, err := store.GetByID(r.Context(), claims.UserID)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := WithActor(r.Context(), user.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithActor returns a context carrying the acting user.
func WithActor(ctx context.Context, actor policy.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the acting user stored by the middleware.
func ActorFrom(ctx context.Context) (policy.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(policy.Actor)
	return actor, ok
}
