// middleware.go

// Bearer token authentication middleware.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const emailKey contextKey = "email"
const userIDKey contextKey = "user_id"

// EmailFromContext retrieves the authenticated user's email from context.
// Returns "" and false if RequireAuth hasn't run.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey).(string)
	return email, ok
}

// UserIDFromContext retrieves the authenticated user's id (token subject) from context.
// Returns "" and false if RequireAuth hasn't run.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// RequireAuth validates the Authorization bearer token and injects the
// caller's email and user id into context; returns 401 on failure.
// No store round-trip -- the token is self-contained.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			logWarn(r, "require auth failed", "reason", "missing_authorization_header")
			Unauthorized(w, r, "unauthorized")
			return
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			logWarn(r, "require auth failed", "reason", "malformed_authorization_header")
			Unauthorized(w, r, "unauthorized")
			return
		}

		claims, err := h.TI.Parse(strings.TrimSpace(token))
		if err != nil {
			logWarn(r, "require auth failed", "reason", "invalid_token")
			Unauthorized(w, r, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), emailKey, claims.Email)
		ctx = context.WithValue(ctx, userIDKey, claims.Subject)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
